package chunker

import "strings"

const (
	DefaultSize    = 500
	DefaultOverlap = 100
)

// Chunker splits text into fixed-size windows that overlap by Overlap
// characters. Sizes count runes, not bytes.
type Chunker struct {
	Size    int
	Overlap int
}

// Default is the 500/100 chunker used for document ingestion.
var Default = Chunker{Size: DefaultSize, Overlap: DefaultOverlap}

// New returns a chunker, falling back to the defaults when size/overlap do not
// describe a forward-moving window.
func New(size, overlap int) Chunker {
	if size <= 0 || overlap < 0 || overlap >= size {
		return Default
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Chunk splits text with the default chunker.
func Chunk(text string) []string {
	return Default.Chunk(text)
}

// Chunk slides a Size-rune window over text, advancing Size-Overlap runes per
// step and stopping after the window that reaches the end. Each window is
// trimmed; windows that trim to "" are dropped. The same text always yields
// the same sequence.
func (c Chunker) Chunk(text string) []string {
	if text == "" {
		return []string{}
	}
	c = New(c.Size, c.Overlap)
	runes := []rune(text)
	step := c.Size - c.Overlap

	out := make([]string, 0, Count(len(runes), c.Size, c.Overlap))
	for start := 0; start < len(runes); start += step {
		end := start + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// Count is the number of windows Chunk visits for a text of length n:
// ceil((n-overlap)/(size-overlap)) when n > size, 1 when 0 < n <= size.
func Count(n, size, overlap int) int {
	switch {
	case n <= 0:
		return 0
	case n <= size:
		return 1
	}
	step := size - overlap
	return (n - overlap + step - 1) / step
}
