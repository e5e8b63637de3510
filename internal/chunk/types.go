// Package chunk splits page markup into retrievable text chunks.
package chunk

import "context"

// Defaults for the flat fallback, in runes.
const (
	DefaultFlatSize    = 1200
	DefaultFlatOverlap = 200
	DefaultMinBlocks   = 5
)

// Chunk is one retrievable fragment of a page. Index is contiguous from 0
// within a page; Path is the structural selector of the block it came
// from, empty for flat chunks.
type Chunk struct {
	Index   int
	Path    string
	Content string
}

// Chunker turns page source into ordered chunks.
type Chunker interface {
	Chunk(ctx context.Context, source []byte) ([]Chunk, error)
}

// Tree is a parsed HTML document.
type Tree struct {
	Root   *Node
	Source []byte
}

// Node is a syntax node of the parsed document.
type Node struct {
	Type      string
	StartByte uint32
	EndByte   uint32
	Children  []*Node
	HasError  bool
}
