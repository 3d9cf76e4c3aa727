package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/registry"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func testCatalog(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	return reg
}

func node(id, typeID string, config map[string]any) schema.WorkflowNode {
	return schema.WorkflowNode{ID: id, Type: typeID, Configuration: config}
}

func edge(id, src, srcPort, dst, dstPort string) schema.Connection {
	return schema.Connection{ID: id, SourceNode: src, SourcePort: srcPort, TargetNode: dst, TargetPort: dstPort}
}

// diamondDoc is stt → (gen, img), gen → tts.
func diamondDoc() *schema.Workflow {
	return &schema.Workflow{
		ID:      "wf-diamond",
		Version: "1.0.0",
		Nodes: []schema.WorkflowNode{
			node("tts", "textToSpeech", map[string]any{"voice": "Default"}),
			node("gen", "textGeneration", map[string]any{"model": "GPT-4", "maxTokens": float64(64)}),
			node("stt", "speechToText", map[string]any{"model": "Whisper"}),
			node("img", "imageGeneration", map[string]any{"model": "DALL-E"}),
		},
		Connections: []schema.Connection{
			edge("c1", "stt", "text", "gen", "prompt"),
			edge("c2", "stt", "text", "img", "prompt"),
			edge("c3", "gen", "text", "tts", "text"),
		},
	}
}

func TestParseDAG_Order(t *testing.T) {
	dag, err := ParseDAG(diamondDoc(), testCatalog(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"stt", "gen", "img", "tts"}, dag.Sorted)
	assert.Equal(t, []string{"stt"}, dag.Roots)
	assert.Equal(t, [][]string{{"stt"}, {"gen", "img"}, {"tts"}}, dag.Levels)
	assert.Equal(t, []string{"gen"}, dag.Upstream["tts"])
	assert.ElementsMatch(t, []string{"gen", "img"}, dag.Downstream["stt"])
	assert.Equal(t, "textGeneration", dag.Types["gen"].ID)
	assert.Equal(t, "[stt] -> [gen img] -> [tts]", dag.String())

	in := dag.IncomingOn("tts", "text")
	require.Len(t, in, 1)
	assert.Equal(t, "c3", in[0].ID)
	assert.Empty(t, dag.IncomingOn("tts", "other"))
}

func TestParseDAG_IndependentNodesKeepDocumentOrder(t *testing.T) {
	doc := &schema.Workflow{
		ID: "wf",
		Nodes: []schema.WorkflowNode{
			node("b", "textGeneration", nil),
			node("a", "textGeneration", nil),
		},
	}
	dag, err := ParseDAG(doc, testCatalog(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, dag.Sorted)
	assert.Equal(t, [][]string{{"b", "a"}}, dag.Levels)
}

func TestParseDAG_Errors(t *testing.T) {
	catalog := testCatalog(t)
	tests := []struct {
		name string
		doc  *schema.Workflow
		code string
	}{
		{"nil document", nil, schema.ErrCodeValidation},
		{"no nodes", &schema.Workflow{ID: "wf"}, schema.ErrCodeValidation},
		{"empty id", &schema.Workflow{Nodes: []schema.WorkflowNode{node("", "textGeneration", nil)}}, schema.ErrCodeValidation},
		{
			"duplicate id",
			&schema.Workflow{Nodes: []schema.WorkflowNode{node("a", "textGeneration", nil), node("a", "textToSpeech", nil)}},
			schema.ErrCodeValidation,
		},
		{"unknown type", &schema.Workflow{Nodes: []schema.WorkflowNode{node("a", "videoGeneration", nil)}}, schema.ErrCodeUnknownType},
		{
			"missing endpoint",
			&schema.Workflow{
				Nodes:       []schema.WorkflowNode{node("a", "textGeneration", nil)},
				Connections: []schema.Connection{edge("c1", "a", "text", "ghost", "text")},
			},
			schema.ErrCodeUnknownNode,
		},
		{
			"self loop",
			&schema.Workflow{
				Nodes:       []schema.WorkflowNode{node("a", "textGeneration", nil)},
				Connections: []schema.Connection{edge("c1", "a", "text", "a", "prompt")},
			},
			schema.ErrCodeCycleDetected,
		},
		{
			"cycle",
			&schema.Workflow{
				Nodes: []schema.WorkflowNode{node("a", "textGeneration", nil), node("b", "textGeneration", nil)},
				Connections: []schema.Connection{
					edge("c1", "a", "text", "b", "prompt"),
					edge("c2", "b", "text", "a", "prompt"),
				},
			},
			schema.ErrCodeCycleDetected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDAG(tt.doc, catalog)
			require.Error(t, err)
			assert.Equal(t, tt.code, schema.CodeOf(err))
		})
	}
}
