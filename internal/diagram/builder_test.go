package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/registry"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// narrator: gen -> tts, gen -> img, plus an isolated stt node.
func narrator() *schema.Workflow {
	return &schema.Workflow{
		ID: "wf",
		Nodes: []schema.WorkflowNode{
			{ID: "textGeneration-1", Type: "textGeneration"},
			{ID: "textToSpeech-2", Type: "textToSpeech"},
			{ID: "imageGeneration-3", Type: "imageGeneration"},
			{ID: "speechToText-4", Type: "speechToText"},
		},
		Connections: []schema.Connection{
			{ID: "e1", SourceNode: "textGeneration-1", SourcePort: "text", TargetNode: "textToSpeech-2", TargetPort: "text"},
			{ID: "e2", Name: "illustrate", SourceNode: "textGeneration-1", SourcePort: "text", TargetNode: "imageGeneration-3", TargetPort: "prompt"},
		},
		Metadata: schema.WorkflowMetadata{Name: "Narrator"},
	}
}

func defaultTypes(t *testing.T) TypeLookup {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	return reg
}

func TestBuild(t *testing.T) {
	m := Build(narrator(), defaultTypes(t))

	assert.Equal(t, "Narrator", m.Title)
	require.Len(t, m.Nodes, 4)
	gen := m.Node("textGeneration-1")
	require.NotNil(t, gen)
	assert.Equal(t, schema.CategoryAIService, gen.Category)
	assert.Contains(t, gen.Label, "textGeneration-1")

	require.Len(t, m.Edges, 2)
	assert.Equal(t, "text → text", m.Edges[0].Label)
	assert.Equal(t, "illustrate", m.Edges[1].Label)

	assert.Equal(t, [][]string{
		{"textGeneration-1", "speechToText-4"},
		{"textToSpeech-2", "imageGeneration-3"},
	}, m.Levels)
}

func TestBuildWithoutCatalog(t *testing.T) {
	m := Build(narrator(), nil)
	assert.Equal(t, "textGeneration\ntextGeneration-1", m.Nodes[0].Label)
	assert.Empty(t, m.Nodes[0].Category)
}

func TestBuildLevelsCycle(t *testing.T) {
	doc := &schema.Workflow{
		Nodes: []schema.WorkflowNode{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Connections: []schema.Connection{
			{ID: "1", SourceNode: "a", TargetNode: "b"},
			{ID: "2", SourceNode: "b", TargetNode: "c"},
			{ID: "3", SourceNode: "c", TargetNode: "b"},
			{ID: "4", SourceNode: "a", TargetNode: "ghost"},
		},
	}
	m := Build(doc, nil)
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}}, m.Levels)
}

func TestBuildLongestPath(t *testing.T) {
	doc := &schema.Workflow{
		Nodes: []schema.WorkflowNode{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Connections: []schema.Connection{
			{ID: "1", SourceNode: "a", TargetNode: "b"},
			{ID: "2", SourceNode: "b", TargetNode: "c"},
			{ID: "3", SourceNode: "a", TargetNode: "c"},
		},
	}
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, Build(doc, nil).Levels)
}

func TestSelect(t *testing.T) {
	m := Build(narrator(), nil)
	m.Select("textToSpeech-2")
	assert.True(t, m.Node("textToSpeech-2").Selected)
	m.Select("")
	assert.False(t, m.Node("textToSpeech-2").Selected)
	assert.Nil(t, m.Node("missing"))
}
