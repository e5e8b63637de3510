package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases and drops stop words", "Change the Title to Welcome", []string{"change", "title", "welcome"}},
		{"splits identifiers", "heroBanner nav_item", []string{"hero", "banner", "nav", "item"}},
		{"drops single characters", "a b cd", []string{"cd"}},
		{"keeps unicode letters", "café menü", []string{"café", "menü"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestSplitCamelCase(t *testing.T) {
	assert.Equal(t, []string{"CTA", "Button"}, SplitCamelCase("CTAButton"))
	assert.Equal(t, []string{"hero", "Banner"}, SplitCamelCase("heroBanner"))
	assert.Equal(t, []string{}, SplitCamelCase(""))
}
