package gcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

type fakePDFText struct {
	calls int
	text  string
}

func (f *fakePDFText) ExtractPDFText(ctx context.Context, data []byte) (string, error) {
	f.calls++
	return f.text, nil
}

func newFakeDocumentText(fallback PDFTextFallback, process processFunc) *DocumentText {
	return &DocumentText{
		log:       logger.Nop(),
		process:   process,
		fallback:  fallback,
		processor: "projects/p/locations/us/processors/x",
		timeout:   time.Second,
	}
}

func TestExtractPDFTextUsesProcessor(t *testing.T) {
	local := &fakePDFText{text: "local"}
	d := newFakeDocumentText(local, func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		if req.GetName() != "projects/p/locations/us/processors/x" || req.GetRawDocument().GetMimeType() != "application/pdf" {
			t.Errorf("request: %+v", req)
		}
		return &documentaipb.ProcessResponse{Document: &documentaipb.Document{Text: "remote text"}}, nil
	})

	got, err := d.ExtractPDFText(context.Background(), []byte("%PDF"))
	if err != nil || got != "remote text" {
		t.Fatalf("ExtractPDFText=%q err=%v", got, err)
	}
	if local.calls != 0 {
		t.Fatalf("fallback called %d times", local.calls)
	}
}

func TestExtractPDFTextFallsBackOnPageLimit(t *testing.T) {
	local := &fakePDFText{text: "forty pages of text"}
	d := newFakeDocumentText(local, func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		return nil, status.Error(codes.InvalidArgument, "Document pages exceed the limit: 15 got 40")
	})

	got, err := d.ExtractPDFText(context.Background(), []byte("%PDF"))
	if err != nil || got != "forty pages of text" {
		t.Fatalf("ExtractPDFText=%q err=%v", got, err)
	}
	if local.calls != 1 {
		t.Fatalf("fallback calls=%d want 1", local.calls)
	}
}

func TestExtractPDFTextSurfacesOtherErrors(t *testing.T) {
	local := &fakePDFText{text: "unused"}
	d := newFakeDocumentText(local, func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		return nil, status.Error(codes.Unavailable, "backend down")
	})
	if _, err := d.ExtractPDFText(context.Background(), []byte("%PDF")); err == nil {
		t.Fatalf("expected error")
	}
	if local.calls != 0 {
		t.Fatalf("fallback must not run for transient errors")
	}

	d = newFakeDocumentText(nil, func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		return nil, status.Error(codes.InvalidArgument, "too many pages")
	})
	_, err := d.ExtractPDFText(context.Background(), []byte("%PDF"))
	if err == nil || status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
		t.Fatalf("without fallback the rejection surfaces: %v", err)
	}
}

func anchor(start, end int64) *documentaipb.Document_TextAnchor {
	return &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
	}
}

func TestDocumentTextJoinsParagraphsByPage(t *testing.T) {
	full := "Safety first. Wear gear.Report incidents."
	doc := &documentaipb.Document{
		Text: full,
		Pages: []*documentaipb.Document_Page{
			{Paragraphs: []*documentaipb.Document_Page_Paragraph{
				{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(0, 13)}},
				{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(14, 24)}},
			}},
			{Paragraphs: []*documentaipb.Document_Page_Paragraph{
				{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(24, 41)}},
			}},
		},
	}
	want := "Safety first.\nWear gear.\n\nReport incidents."
	if got := documentText(doc); got != want {
		t.Fatalf("documentText=%q want %q", got, want)
	}
}

func TestDocumentTextFallsBackToRawText(t *testing.T) {
	doc := &documentaipb.Document{Text: "  only raw text  "}
	if got := documentText(doc); got != "only raw text" {
		t.Fatalf("documentText=%q", got)
	}
}

func TestProcessorName(t *testing.T) {
	cfg := DocumentTextConfig{ProjectID: "p", Location: "eu", ProcessorID: "abc", ProcessorVersion: "rc"}
	if got := cfg.ProcessorName(); got != "projects/p/locations/eu/processors/abc/processorVersions/rc" {
		t.Fatalf("ProcessorName=%q", got)
	}
	if (DocumentTextConfig{Location: "us"}).Enabled() {
		t.Fatalf("empty config should be disabled")
	}

	named := DocumentTextConfig{Name: "projects/p/locations/eu/processors/xyz", ProjectID: "q", Location: "us", ProcessorID: "abc"}
	if got := named.ProcessorName(); got != "projects/p/locations/eu/processors/xyz" {
		t.Fatalf("ProcessorName with Name=%q", got)
	}
	if got := named.location(); got != "eu" {
		t.Fatalf("location=%q want eu", got)
	}
}
