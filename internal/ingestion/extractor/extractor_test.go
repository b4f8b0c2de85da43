package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

type fakePDF struct {
	text string
	err  error
}

func (f fakePDF) ExtractPDFText(ctx context.Context, data []byte) (string, error) {
	return f.text, f.err
}

type fakeDoc struct{ text string }

func (f fakeDoc) ConvertDocToText(ctx context.Context, data []byte) (string, error) {
	return f.text, nil
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Safety </w:t></w:r><w:r><w:t>first</w:t></w:r></w:p>
    <w:p><w:r><w:t>Col A</w:t><w:tab/><w:t>Col B</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t>Report incidents</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestParseFormat(t *testing.T) {
	cases := []struct {
		mime string
		want Format
	}{
		{"application/pdf", FormatPDF},
		{"application/msword", FormatDOC},
		{MIMEDOCX, FormatDOCX},
		{"text/plain; charset=utf-8", FormatText},
		{"TEXT/MARKDOWN", FormatMarkdown},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.mime)
		if err != nil || got != tc.want {
			t.Fatalf("ParseFormat(%q)=%v,%v want %v", tc.mime, got, err, tc.want)
		}
	}
	if _, err := ParseFormat("image/png"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("ParseFormat(image/png): err=%v", err)
	}
}

func TestExtractDispatch(t *testing.T) {
	ex := New(logger.Nop(), fakePDF{text: "pdf text"}, fakeDoc{text: "doc text"})
	ctx := context.Background()

	cases := []struct {
		name string
		data []byte
		mime string
		want string
	}{
		{"pdf", []byte("%PDF"), MIMEPDF, "pdf text"},
		{"doc", []byte{0xd0, 0xcf}, MIMEDOC, "doc text"},
		{"docx", buildDOCX(t, sampleDocumentXML), MIMEDOCX, "Safety first\n\nCol A\tCol B\n\nReport incidents"},
		{"text", []byte("\uFEFFplain\x00 text"), MIMEText, "plain text"},
		{"markdown", []byte("# Title"), MIMEMarkdown, "# Title"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ex.Extract(ctx, tc.data, tc.mime)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Extract=%q want %q", got, tc.want)
			}
		})
	}
}

func TestExtractUnsupported(t *testing.T) {
	ex := New(logger.Nop(), nil, nil)
	if _, err := ex.Extract(context.Background(), []byte("x"), "application/zip"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtractSurfacesCorruptFiles(t *testing.T) {
	boom := errors.New("corrupt xref table")
	ex := New(logger.Nop(), fakePDF{err: boom}, nil)
	if _, err := ex.Extract(context.Background(), []byte("%PDF"), MIMEPDF); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if _, err := ex.Extract(context.Background(), []byte("not a zip"), MIMEDOCX); err == nil {
		t.Fatalf("expected docx error for corrupt archive")
	}
}

func TestExtractDOCXKeepsTextAroundTextBoxes(t *testing.T) {
	xmlBody := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p>
      <w:r><w:t>Before the box. </w:t></w:r>
      <w:r><w:pict><w:txbxContent>
        <w:p><w:r><w:t>Inside the box</w:t></w:r></w:p>
      </w:txbxContent></w:pict></w:r>
      <w:r><w:t>After the box.</w:t></w:r>
    </w:p>
    <w:p><w:r><w:t>Closing paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`
	got, err := ExtractDOCX(buildDOCX(t, xmlBody))
	if err != nil {
		t.Fatalf("ExtractDOCX: %v", err)
	}
	want := "Inside the box\n\nBefore the box. After the box.\n\nClosing paragraph"
	if got != want {
		t.Fatalf("ExtractDOCX=%q want %q", got, want)
	}
}

func TestExtractDOCXRejectsOversizedBody(t *testing.T) {
	prev := maxDocxBodyBytes
	maxDocxBodyBytes = 1024
	t.Cleanup(func() { maxDocxBodyBytes = prev })

	// Highly compressible, so the archive itself stays small.
	body := `<w:document><w:body><w:p><w:r><w:t>` + strings.Repeat("a", 4096) + `</w:t></w:r></w:p></w:body></w:document>`
	data := buildDOCX(t, body)
	if len(data) >= 1024 {
		t.Fatalf("archive unexpectedly large: %d bytes", len(data))
	}
	if _, err := ExtractDOCX(data); !errors.Is(err, ErrDocxTooLarge) {
		t.Fatalf("expected ErrDocxTooLarge, got %v", err)
	}
}

func TestFormatExtension(t *testing.T) {
	if FormatDOCX.Extension() != ".docx" || FormatMarkdown.Extension() != ".md" || FormatUnknown.Extension() != "" {
		t.Fatalf("unexpected extensions")
	}
}
