package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBodyPart = "word/document.xml"

// maxDocxBodyBytes caps the decompressed body so a small archive cannot
// inflate into an unbounded read.
var maxDocxBodyBytes int64 = 64 << 20

var ErrDocxTooLarge = errors.New("docx body exceeds size limit")

// ExtractDOCX reads the paragraphs of word/document.xml. Paragraphs are
// separated by a blank line; w:tab and w:br become tab and newline.
func ExtractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	body, err := readZipFile(zr.File, docxBodyPart)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	paras, err := docxParagraphs(body)
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	return strings.Join(paras, "\n\n"), nil
}

func readZipFile(files []*zip.File, target string) ([]byte, error) {
	for _, f := range files {
		if f == nil || !strings.EqualFold(strings.TrimSpace(f.Name), target) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		body, err := io.ReadAll(io.LimitReader(rc, maxDocxBodyBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > maxDocxBodyBytes {
			return nil, fmt.Errorf("%s: %w", target, ErrDocxTooLarge)
		}
		return body, nil
	}
	return nil, fmt.Errorf("%s not found", target)
}

// docxParagraphs keeps a stack of open paragraphs: text boxes nest a w:p
// inside another, and the inner one is emitted when it closes without
// discarding the outer paragraph's text.
func docxParagraphs(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		open   []*strings.Builder
		inText bool
		out    []string
	)
	current := func() *strings.Builder {
		if len(open) == 0 {
			return nil
		}
		return open[len(open)-1]
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				open = append(open, &strings.Builder{})
			case "t":
				inText = len(open) > 0
			case "tab":
				if b := current(); b != nil {
					b.WriteByte('\t')
				}
			case "br", "cr":
				if b := current(); b != nil {
					b.WriteByte('\n')
				}
			}
		case xml.CharData:
			if b := current(); inText && b != nil {
				b.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if b := current(); b != nil {
					open = open[:len(open)-1]
					if p := strings.TrimSpace(b.String()); p != "" {
						out = append(out, p)
					}
				}
			}
		}
	}
	return out, nil
}
