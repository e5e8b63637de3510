package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ParsesElements(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), []byte(`<div><p>a</p><p>b</p></div>`))

	require.NoError(t, err)
	require.NotNil(t, tree.Root)
	assert.Equal(t, "document", tree.Root.Type)
	assert.Len(t, tree.Root.FindAllByType("element"), 3)
}

func TestParser_MalformedMarkupStillParses(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), []byte(`<div><p>unclosed <span>`))

	require.NoError(t, err)
	assert.NotNil(t, tree.Root)
}
