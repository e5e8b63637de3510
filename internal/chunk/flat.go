package chunk

import (
	"context"
	"fmt"
)

// FlatChunker splits text into fixed-size rune windows that overlap.
type FlatChunker struct {
	Size    int
	Overlap int
}

// NewFlatChunker returns a flat chunker; non-positive values take the defaults.
func NewFlatChunker(size, overlap int) *FlatChunker {
	if size <= 0 {
		size = DefaultFlatSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultFlatOverlap
		if overlap >= size {
			overlap = size / 6
		}
	}
	return &FlatChunker{Size: size, Overlap: overlap}
}

// Chunk treats source as plain text.
func (f *FlatChunker) Chunk(_ context.Context, source []byte) ([]Chunk, error) {
	if f.Overlap >= f.Size {
		return nil, fmt.Errorf("flat chunk overlap %d must be smaller than size %d", f.Overlap, f.Size)
	}
	return f.split(string(source)), nil
}

func (f *FlatChunker) split(text string) []Chunk {
	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); {
		end := min(len(runes), start+f.Size)
		chunks = append(chunks, Chunk{Index: len(chunks), Content: string(runes[start:end])})
		if end == len(runes) {
			break
		}
		start = end - f.Overlap
	}
	return chunks
}
