package chunk

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// blockTags are the elements that become DOM chunks. Nested blocks each
// produce their own chunk.
var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "section": true, "article": true, "div": true,
}

// DOMChunker emits one chunk per non-empty block element, in document
// order, with a tag:nth-of-type(n) path from the outermost element. Script
// and style contents are never part of chunk text. Pages with fewer than
// MinBlocks blocks are split flat over their visible text instead.
type DOMChunker struct {
	MinBlocks int
	Flat      *FlatChunker
}

// NewDOMChunker returns a DOM chunker falling back to flat.
func NewDOMChunker(minBlocks int, flat *FlatChunker) *DOMChunker {
	if minBlocks <= 0 {
		minBlocks = DefaultMinBlocks
	}
	if flat == nil {
		flat = NewFlatChunker(0, -1)
	}
	return &DOMChunker{MinBlocks: minBlocks, Flat: flat}
}

// Chunk parses source as HTML.
func (d *DOMChunker) Chunk(ctx context.Context, source []byte) ([]Chunk, error) {
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("dom chunking: %w", err)
	}

	blocks := collectBlocks(tree)
	if len(blocks) >= d.MinBlocks {
		return blocks, nil
	}
	return d.Flat.split(VisibleText(tree)), nil
}

// elementTag returns the lowercase tag name of an element node.
func elementTag(n *Node, source []byte) (string, bool) {
	if n.Type != "element" {
		return "", false
	}
	tag := n.FindChildByType("start_tag")
	if tag == nil {
		tag = n.FindChildByType("self_closing_tag")
	}
	if tag == nil {
		return "", false
	}
	name := tag.FindChildByType("tag_name")
	if name == nil {
		return "", false
	}
	return strings.ToLower(name.Content(source)), true
}

func collectBlocks(tree *Tree) []Chunk {
	var chunks []Chunk
	var visit func(parent *Node, prefix string)
	visit = func(parent *Node, prefix string) {
		seen := make(map[string]int)
		for _, child := range parent.Children {
			tag, ok := elementTag(child, tree.Source)
			if !ok {
				continue
			}
			seen[tag]++
			path := fmt.Sprintf("%s:nth-of-type(%d)", tag, seen[tag])
			if prefix != "" {
				path = prefix + ">" + path
			}
			if blockTags[tag] {
				if text := strings.Join(textPieces(child, tree.Source), " "); text != "" {
					chunks = append(chunks, Chunk{Index: len(chunks), Path: path, Content: text})
				}
			}
			visit(child, path)
		}
	}
	visit(tree.Root, "")
	return chunks
}

// textPieces returns the whitespace-trimmed text runs under n in document
// order, entity-decoded. Adjacent text and entity nodes form one run.
func textPieces(n *Node, source []byte) []string {
	var pieces []string
	var run strings.Builder
	flush := func() {
		if s := strings.Join(strings.Fields(html.UnescapeString(run.String())), " "); s != "" {
			pieces = append(pieces, s)
		}
		run.Reset()
	}

	var walk func(node *Node)
	walk = func(node *Node) {
		var prevEnd uint32
		inRun := false
		for _, child := range node.Children {
			switch child.Type {
			case "text", "entity":
				if inRun && child.StartByte != prevEnd {
					run.WriteString(" ")
				}
				run.WriteString(child.Content(source))
				prevEnd = child.EndByte
				inRun = true
			case "element":
				flush()
				inRun = false
				walk(child)
			default:
				// tags, comments, script and style bodies
				if child.Type != "start_tag" && child.Type != "end_tag" {
					flush()
					inRun = false
				}
			}
		}
		flush()
	}
	walk(n)
	return pieces
}

// VisibleText returns the document's text one trimmed line per text run,
// skipping script and style bodies.
func VisibleText(tree *Tree) string {
	return strings.Join(textPieces(tree.Root, tree.Source), "\n")
}
