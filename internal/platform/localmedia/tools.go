package localmedia

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

// Tools wraps the system binaries used to read office and PDF formats.
//
// REQUIRED BINARIES in the runtime image:
// - pdftotext (poppler-utils) for PDF -> text
// - soffice (libreoffice) for legacy .doc -> text
type Tools interface {
	AssertReady(ctx context.Context) error
	ExtractPDFText(ctx context.Context, data []byte) (string, error)
	ConvertDocToText(ctx context.Context, data []byte) (string, error)
}

type tools struct {
	log *logger.Logger

	pdftotextPath string
	sofficePath   string

	workRoot       string
	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	return &tools{
		log:            log.With("service", "LocalMediaTools"),
		pdftotextPath:  "pdftotext",
		sofficePath:    "soffice",
		workRoot:       os.TempDir(),
		defaultTimeout: 2 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.pdftotextPath, m.sofficePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	return nil
}

// ExtractPDFText runs pdftotext over the bytes. An image-only PDF yields "".
func (m *tools) ExtractPDFText(ctx context.Context, data []byte) (string, error) {
	ctx = ctxutil.Default(ctx)
	if _, err := exec.LookPath(m.pdftotextPath); err != nil {
		return "", fmt.Errorf("pdftotext not found in PATH: %w", err)
	}
	dir, cleanup, err := m.workDir("pdftotext")
	if err != nil {
		return "", err
	}
	defer cleanup()

	inPath := filepath.Join(dir, "in.pdf")
	outPath := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp pdf: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()
	if err := m.run(callCtx, m.pdftotextPath, "-enc", "UTF-8", "-q", inPath, outPath); err != nil {
		return "", err
	}
	b, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("read pdftotext output: %w", err)
	}
	return string(b), nil
}

// ConvertDocToText converts a legacy Word file with LibreOffice's text filter.
func (m *tools) ConvertDocToText(ctx context.Context, data []byte) (string, error) {
	ctx = ctxutil.Default(ctx)
	if _, err := exec.LookPath(m.sofficePath); err != nil {
		return "", fmt.Errorf("soffice not found in PATH: %w", err)
	}
	dir, cleanup, err := m.workDir("soffice")
	if err != nil {
		return "", err
	}
	defer cleanup()

	inPath := filepath.Join(dir, "in.doc")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp doc: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()
	if err := m.run(callCtx, m.sofficePath,
		"--headless",
		"--nologo",
		"--nolockcheck",
		"--nodefault",
		"--norestore",
		"-env:UserInstallation=file://"+filepath.Join(dir, "profile"),
		"--convert-to", "txt:Text (encoded):UTF8",
		"--outdir", dir,
		inPath,
	); err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(dir, "in.txt"))
	if err != nil {
		return "", fmt.Errorf("read soffice output: %w", err)
	}
	return string(b), nil
}

func (m *tools) workDir(tag string) (string, func(), error) {
	dir, err := os.MkdirTemp(m.workRoot, "karibu_"+tag+"_*")
	if err != nil {
		return "", func() {}, fmt.Errorf("temp dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (m *tools) run(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("%s: %w; stderr=%s", filepath.Base(bin), err, s)
		}
		return fmt.Errorf("%s: %w", filepath.Base(bin), err)
	}
	return nil
}
