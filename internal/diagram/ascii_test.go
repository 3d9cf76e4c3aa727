package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/flowcanvas/pkg/schema"
)

func categoryOf(s string) schema.NodeCategory { return schema.NodeCategory(s) }

func TestRenderASCII(t *testing.T) {
	m := Build(narrator(), defaultTypes(t))
	out := RenderASCII(m)

	assert.True(t, strings.HasPrefix(out, "=== Narrator ===\n"))
	assert.Contains(t, out, "┌")
	assert.Contains(t, out, "┘")
	assert.Contains(t, out, "▼")
	assert.Contains(t, out, "textToSpeech-2")
	assert.Contains(t, out, "connections:\n")
	assert.Contains(t, out, "textGeneration-1 ─→ imageGeneration-3  (illustrate)")
}

func TestRenderASCIISelected(t *testing.T) {
	m := Build(narrator(), nil)
	m.Select("speechToText-4")
	out := RenderASCII(m)
	assert.Contains(t, out, "╔")
	assert.Equal(t, 1, strings.Count(out, "╔"))
}

func TestMakeBoxAlignsRows(t *testing.T) {
	box := makeBox(&Node{Label: "Text → Speech\nx"})
	assert.Len(t, box.lines, 4)
	assert.Equal(t, "│ x             │", box.lines[2])
	assert.Equal(t, 17, box.width)
}

func TestRenderASCIIEmpty(t *testing.T) {
	assert.Equal(t, "", RenderASCII(&Model{}))
}
