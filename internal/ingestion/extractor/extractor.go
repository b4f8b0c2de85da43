package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

// PDFTextExtractor turns PDF bytes into text (Document AI or pdftotext).
type PDFTextExtractor interface {
	ExtractPDFText(ctx context.Context, data []byte) (string, error)
}

// DocConverter turns legacy .doc bytes into text.
type DocConverter interface {
	ConvertDocToText(ctx context.Context, data []byte) (string, error)
}

var errNoBackend = errors.New("no extraction backend configured")

type Extractor struct {
	log *logger.Logger
	pdf PDFTextExtractor
	doc DocConverter
}

func New(log *logger.Logger, pdf PDFTextExtractor, doc DocConverter) *Extractor {
	return &Extractor{log: log.With("component", "Extractor"), pdf: pdf, doc: doc}
}

// Extract returns the plain text of data as declared by mimeType. Unsupported
// types fail with ErrUnsupportedFormat; corrupt files return the backend error.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx = ctxutil.Default(ctx)
	format, err := ParseFormat(mimeType)
	if err != nil {
		return "", err
	}

	var text string
	switch format {
	case FormatPDF:
		if e.pdf == nil {
			return "", fmt.Errorf("pdf: %w", errNoBackend)
		}
		text, err = e.pdf.ExtractPDFText(ctx, data)
	case FormatDOC:
		if e.doc == nil {
			return "", fmt.Errorf("doc: %w", errNoBackend)
		}
		text, err = e.doc.ConvertDocToText(ctx, data)
	case FormatDOCX:
		text, err = ExtractDOCX(data)
	case FormatText, FormatMarkdown:
		text = string(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", format, err)
	}
	return sanitizeUTF8(text), nil
}

func sanitizeUTF8(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	if utf8.ValidString(s) && !strings.ContainsRune(s, 0) {
		return s
	}
	s = strings.ToValidUTF8(s, "")
	return string(bytes.ReplaceAll([]byte(s), []byte{0}, nil))
}
