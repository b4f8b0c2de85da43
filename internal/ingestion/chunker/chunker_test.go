package chunker

import (
	"reflect"
	"strings"
	"testing"
)

func TestChunkCountMatchesFormula(t *testing.T) {
	for _, n := range []int{1, 99, 100, 499, 500, 501, 899, 900, 901, 1200, 1201, 5000, 12345} {
		text := strings.Repeat("a", n)
		got := len(Chunk(text))
		if want := Count(n, DefaultSize, DefaultOverlap); got != want {
			t.Fatalf("n=%d: chunks=%d want %d", n, got, want)
		}
	}
}

func TestChunk1200CharsYieldsThree(t *testing.T) {
	chunks := Chunk(strings.Repeat("A", 1200))
	if len(chunks) != 3 {
		t.Fatalf("chunks=%d want 3", len(chunks))
	}
	for i, want := range []int{500, 500, 400} {
		if got := len([]rune(chunks[i])); got != want {
			t.Fatalf("chunk %d len=%d want %d", i, got, want)
		}
	}
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	chunks := Chunk("  short text \n")
	if !reflect.DeepEqual(chunks, []string{"short text"}) {
		t.Fatalf("chunks=%q", chunks)
	}
}

func TestChunkDropsWhitespaceWindows(t *testing.T) {
	text := strings.Repeat("x", 100) + strings.Repeat(" ", 1000) + strings.Repeat("y", 10)
	chunks := Chunk(text)
	for _, c := range chunks {
		if c == "" {
			t.Fatalf("empty chunk emitted")
		}
	}
	if last := chunks[len(chunks)-1]; !strings.HasSuffix(last, "y") {
		t.Fatalf("tail lost: %q", last)
	}
	if len(chunks) >= Count(len(text), DefaultSize, DefaultOverlap) {
		t.Fatalf("expected whitespace-only window to be dropped, got %d chunks", len(chunks))
	}
}

func TestChunkDeterministic(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("Always wear protective gear on the floor. ")
	}
	text := b.String()
	if !reflect.DeepEqual(Chunk(text), Chunk(text)) {
		t.Fatalf("chunking is not deterministic")
	}
}

func TestChunkCoverageWithOverlapRemoved(t *testing.T) {
	var b strings.Builder
	for i := 0; b.Len() < 2300; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	text := b.String()
	chunks := Chunk(text)

	step := DefaultSize - DefaultOverlap
	var rebuilt strings.Builder
	for i, c := range chunks {
		if i == len(chunks)-1 {
			rebuilt.WriteString(c)
			break
		}
		rebuilt.WriteString(c[:step])
	}
	if rebuilt.String() != text {
		t.Fatalf("coverage mismatch: rebuilt %d chars of %d", rebuilt.Len(), len(text))
	}
}

func TestChunkCountsRunes(t *testing.T) {
	chunks := Chunk(strings.Repeat("é", 600))
	if len(chunks) != 2 || len([]rune(chunks[0])) != 500 {
		t.Fatalf("chunks=%d first=%d runes", len(chunks), len([]rune(chunks[0])))
	}
}

func TestNewFallsBackOnBadWindow(t *testing.T) {
	if got := New(100, 100); got != Default {
		t.Fatalf("New(100,100)=%v", got)
	}
	if got := New(200, 50); got.Size != 200 || got.Overlap != 50 {
		t.Fatalf("New(200,50)=%v", got)
	}
}
