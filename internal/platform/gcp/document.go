package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/envutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

// DocumentTextConfig names the Document AI processor used for PDF text.
type DocumentTextConfig struct {
	// Name is a full processor resource name; it wins over the parts below.
	Name             string
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

func ResolveDocumentTextConfigFromEnv() DocumentTextConfig {
	return DocumentTextConfig{
		Name:             envutil.String("DOCAI_PROCESSOR_NAME", ""),
		ProjectID:        envutil.String("DOCAI_PROJECT_ID", ""),
		Location:         envutil.String("DOCAI_LOCATION", "us"),
		ProcessorID:      envutil.String("DOCAI_PROCESSOR_ID", ""),
		ProcessorVersion: envutil.String("DOCAI_PROCESSOR_VERSION", ""),
		Timeout:          envutil.Seconds("DOCAI_TIMEOUT_SECONDS", 3*time.Minute),
	}
}

// Enabled reports whether a processor is configured.
func (c DocumentTextConfig) Enabled() bool {
	return c.ProcessorName() != ""
}

func (c DocumentTextConfig) ProcessorName() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	project := strings.TrimSpace(c.ProjectID)
	location := strings.TrimSpace(c.Location)
	processorID := strings.TrimSpace(c.ProcessorID)
	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if v := strings.TrimSpace(c.ProcessorVersion); v != "" {
		return base + "/processorVersions/" + v
	}
	return base
}

// location prefers the region embedded in a full processor name.
func (c DocumentTextConfig) location() string {
	parts := strings.Split(c.ProcessorName(), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "locations" && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return strings.TrimSpace(c.Location)
}

// PDFTextFallback extracts PDF text locally when Document AI rejects a file.
type PDFTextFallback interface {
	ExtractPDFText(ctx context.Context, data []byte) (string, error)
}

type processFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)

// DocumentText extracts PDF text through an online Document AI process call.
// Online processing caps page count; files it rejects as invalid go to the
// fallback instead.
type DocumentText struct {
	log       *logger.Logger
	process   processFunc
	closeFn   func() error
	fallback  PDFTextFallback
	processor string
	timeout   time.Duration
}

func NewDocumentText(ctx context.Context, log *logger.Logger, cfg DocumentTextConfig, fallback PDFTextFallback) (*DocumentText, error) {
	name := cfg.ProcessorName()
	if name == "" {
		return nil, fmt.Errorf("documentai processor not configured")
	}
	slog := log.With("service", "gcp.DocumentText")

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.location())
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &DocumentText{
		log: slog,
		process: func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
			return c.ProcessDocument(ctx, req)
		},
		closeFn:   c.Close,
		fallback:  fallback,
		processor: name,
		timeout:   timeout,
	}, nil
}

func (d *DocumentText) ExtractPDFText(ctx context.Context, data []byte) (string, error) {
	ctx = ctxutil.Default(ctx)
	if len(data) == 0 {
		return "", nil
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.process(callCtx, &documentaipb.ProcessRequest{
		Name: d.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		if d.fallback != nil && status.Code(err) == codes.InvalidArgument {
			d.log.Warn("Document AI rejected PDF; extracting locally",
				"processor", d.processor,
				"bytes", len(data),
				"error", err,
			)
			return d.fallback.ExtractPDFText(ctx, data)
		}
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", nil
	}
	return documentText(resp.Document), nil
}

func (d *DocumentText) Close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// documentText joins paragraph layouts page by page, falling back to the raw
// document text when the processor returned no layout.
func documentText(doc *documentaipb.Document) string {
	var b strings.Builder
	for _, p := range doc.GetPages() {
		var page strings.Builder
		for _, para := range p.GetParagraphs() {
			t := strings.TrimSpace(textFromAnchor(doc.GetText(), para.GetLayout().GetTextAnchor()))
			if t == "" {
				continue
			}
			page.WriteString(t)
			page.WriteString("\n")
		}
		if pt := strings.TrimSpace(page.String()); pt != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(pt)
		}
	}
	if b.Len() == 0 {
		return strings.TrimSpace(doc.GetText())
	}
	return b.String()
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start := int(seg.GetStartIndex())
		end := int(seg.GetEndIndex())
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}
