package extractor

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ErrUnsupportedFormat is returned for MIME types outside the supported set.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Format is the closed set of document formats the extractor understands.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatDOC
	FormatDOCX
	FormatText
	FormatMarkdown
)

const (
	MIMEPDF      = "application/pdf"
	MIMEDOC      = "application/msword"
	MIMEDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEText     = "text/plain"
	MIMEMarkdown = "text/markdown"
)

var formatsByMIME = map[string]Format{
	MIMEPDF:      FormatPDF,
	MIMEDOC:      FormatDOC,
	MIMEDOCX:     FormatDOCX,
	MIMEText:     FormatText,
	MIMEMarkdown: FormatMarkdown,
}

// ParseFormat maps a declared MIME type (parameters ignored) to a Format.
func ParseFormat(mimeType string) (Format, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	if f, ok := formatsByMIME[mt]; ok {
		return f, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
}

// SupportedMIMETypes lists the accepted upload types.
func SupportedMIMETypes() []string {
	return []string{MIMEPDF, MIMEDOC, MIMEDOCX, MIMEText, MIMEMarkdown}
}

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatDOC:
		return "doc"
	case FormatDOCX:
		return "docx"
	case FormatText:
		return "text"
	case FormatMarkdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// Extension is the storage key suffix for the format, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatPDF:
		return ".pdf"
	case FormatDOC:
		return ".doc"
	case FormatDOCX:
		return ".docx"
	case FormatText:
		return ".txt"
	case FormatMarkdown:
		return ".md"
	default:
		return ""
	}
}
