package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/interaction"
	"github.com/rendis/flowcanvas/internal/registry"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/pkg/schema"
)

var (
	identity = geometry.Viewport{Zoom: 1}
	fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
)

func newTestSession(t *testing.T, hub streaming.EventHub) *Session {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	s, err := New(reg, Options{ID: "s1", Hub: hub, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return s
}

// drain collects the events already buffered on ch.
func drain(ch <-chan streaming.StreamEvent) []string {
	var types []string
	for {
		select {
		case ev := <-ch:
			types = append(types, ev.EventType)
		default:
			return types
		}
	}
}

func TestAddNodeDefaults(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()

	n, err := s.AddNode(ctx, "textGeneration", schema.Position{X: 10, Y: 20})
	require.NoError(t, err)
	assert.Equal(t, "textGeneration-1", n.ID)
	assert.Equal(t, "GPT-3.5 Turbo", n.Configuration["model"])
	assert.EqualValues(t, 1, n.Configuration["maxTokens"])

	_, err = s.AddNode(ctx, "nope", schema.Position{})
	assert.Equal(t, schema.ErrCodeUnknownType, schema.CodeOf(err))
	assert.Len(t, s.Snapshot().Nodes, 1)
}

func TestPlaceNode(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()
	surface := geometry.Size{Width: 800, Height: 600}
	vp := geometry.Viewport{Pan: geometry.Pt(100, 0), Zoom: 0.5}

	single, err := s.PlaceNode(ctx, "speechToText", surface, vp, geometry.SingleClickOffset)
	require.NoError(t, err)
	assert.Equal(t, schema.Position{X: 600, Y: 600}, single.Position)

	double, err := s.PlaceNode(ctx, "speechToText", surface, vp, geometry.DoubleClickOffset)
	require.NoError(t, err)
	assert.Equal(t, schema.Position{X: 600, Y: 800}, double.Position)

	_, err = s.PlaceNode(ctx, "speechToText", surface, geometry.Viewport{}, geometry.SingleClickOffset)
	assert.Equal(t, schema.ErrCodeInvalidZoom, schema.CodeOf(err))
}

func TestEventsCarryRevision(t *testing.T) {
	hub := streaming.NewMemoryHub()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{SessionID: "s1"})
	require.NoError(t, err)
	defer cancel()

	s := newTestSession(t, hub)
	gen, err := s.AddNode(ctx, "textGeneration", schema.Position{})
	require.NoError(t, err)
	tts, err := s.AddNode(ctx, "textToSpeech", schema.Position{X: 400})
	require.NoError(t, err)
	require.NoError(t, s.UpdateConfig(ctx, gen.ID, "maxTokens", 256))
	e, err := s.Connect(ctx, graph.Endpoint{Node: gen.ID, Port: "text"}, graph.Endpoint{Node: tts.ID, Port: "text"}, "", nil)
	require.NoError(t, err)
	assert.True(t, s.RemoveEdge(ctx, e.ID))
	assert.False(t, s.RemoveEdge(ctx, e.ID))

	var revisions []uint64
	var types []string
	for range 5 {
		ev := <-ch
		revisions = append(revisions, ev.Revision)
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{
		schema.EventNodeAdded, schema.EventNodeAdded, schema.EventNodeConfigUpdated,
		schema.EventEdgeConnected, schema.EventEdgeRemoved,
	}, types)
	assert.IsIncreasing(t, revisions)
	assert.Empty(t, drain(ch))
}

func TestConnectRejectsBadRule(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()
	gen, _ := s.AddNode(ctx, "textGeneration", schema.Position{})
	tts, _ := s.AddNode(ctx, "textToSpeech", schema.Position{X: 400})

	_, err := s.Connect(ctx, graph.Endpoint{Node: gen.ID, Port: "text"}, graph.Endpoint{Node: tts.ID, Port: "text"}, "",
		[]schema.TransformationRule{{Type: "jq", Params: map[string]any{"expression": ".[["}}})
	assert.Equal(t, schema.ErrCodeExpression, schema.CodeOf(err))
	assert.Empty(t, s.Snapshot().Edges)

	_, err = s.Connect(ctx, graph.Endpoint{Node: tts.ID, Port: "audio"}, graph.Endpoint{Node: gen.ID, Port: "text"}, "", nil)
	assert.Equal(t, schema.ErrCodeConnectionRejected, schema.CodeOf(err))
}

func TestPreviewEdge(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()
	gen, _ := s.AddNode(ctx, "textGeneration", schema.Position{})
	tts, _ := s.AddNode(ctx, "textToSpeech", schema.Position{X: 400})
	e, err := s.Connect(ctx, graph.Endpoint{Node: gen.ID, Port: "text"}, graph.Endpoint{Node: tts.ID, Port: "text"}, "speak",
		[]schema.TransformationRule{
			{Type: "jq", Params: map[string]any{"expression": ".text"}},
			{Type: "expr", Params: map[string]any{"expression": "upper(payload)"}},
		})
	require.NoError(t, err)

	p, err := s.PreviewEdge(ctx, e.ID, map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "HI", p.Output)

	_, err = s.PreviewEdge(ctx, "missing", nil)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestGestureThroughSurface(t *testing.T) {
	hub := streaming.NewMemoryHub()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{SessionID: "s1"})
	require.NoError(t, err)
	defer cancel()

	s := newTestSession(t, hub)
	gen, _ := s.AddNode(ctx, "textGeneration", schema.Position{})
	tts, _ := s.AddNode(ctx, "textToSpeech", schema.Position{X: 400})
	drain(ch)

	// Output anchor of gen sits at (240, 60), input anchor of tts at (400, 60).
	st, err := s.StartGesture(ctx, interaction.PortRef{Node: gen.ID, Port: "text", Direction: schema.DirectionOutput},
		geometry.Pt(240, 60), identity)
	require.NoError(t, err)
	assert.Equal(t, interaction.PhaseDragging, st.Phase)
	assert.Equal(t, 1, s.Subscribers())

	st = s.Input(ctx, interaction.InputEvent{Kind: interaction.InputPointerMove, Point: geometry.Pt(395, 62), Viewport: identity, Seq: 1})
	require.NotNil(t, st.Drag.Highlighted)
	assert.Equal(t, tts.ID, st.Drag.Highlighted.Node)

	// A stale move changes nothing.
	st = s.Input(ctx, interaction.InputEvent{Kind: interaction.InputPointerMove, Point: geometry.Pt(0, 0), Viewport: identity, Seq: 1})
	assert.Equal(t, geometry.Pt(395, 62), st.Drag.CurrentCanvas)

	target := &interaction.PortRef{Node: tts.ID, Port: "text", Direction: schema.DirectionInput}
	st = s.Input(ctx, interaction.InputEvent{Kind: interaction.InputPointerUp, Point: geometry.Pt(400, 60), Viewport: identity, Seq: 2, Target: target})
	assert.Equal(t, interaction.PhaseIdle, st.Phase)
	assert.Equal(t, 0, s.Subscribers())

	edges := s.Snapshot().Edges
	require.Len(t, edges, 1)
	assert.Equal(t, gen.ID, edges[0].SourceNode)
	assert.Equal(t, tts.ID, edges[0].TargetNode)

	assert.Equal(t, []string{
		schema.EventGestureStarted, schema.EventGestureHighlight,
		schema.EventEdgeConnected, schema.EventGestureEnded,
	}, drain(ch))

	// Input while idle is dropped.
	st = s.Input(ctx, interaction.InputEvent{Kind: interaction.InputPointerUp, Target: target})
	assert.Equal(t, interaction.PhaseIdle, st.Phase)
	assert.Empty(t, drain(ch))
}

func TestStartGestureResolvesDirection(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()
	gen, _ := s.AddNode(ctx, "textGeneration", schema.Position{})

	_, err := s.StartGesture(ctx, interaction.PortRef{Node: "ghost-9", Port: "text"}, geometry.Pt(0, 0), identity)
	assert.Equal(t, schema.ErrCodeUnknownNode, schema.CodeOf(err))

	_, err = s.StartGesture(ctx, interaction.PortRef{Node: gen.ID, Port: "audio"}, geometry.Pt(0, 0), identity)
	assert.Equal(t, schema.ErrCodeUnknownPort, schema.CodeOf(err))

	_, err = s.StartGesture(ctx, interaction.PortRef{Node: gen.ID, Port: "text", Direction: schema.DirectionInput},
		geometry.Pt(0, 0), identity)
	assert.Equal(t, schema.ErrCodeUnknownPort, schema.CodeOf(err))
	assert.Equal(t, interaction.PhaseIdle, s.Gesture().Phase)

	st, err := s.StartGesture(ctx, interaction.PortRef{Node: gen.ID, Port: "prompt"}, geometry.Pt(0, 60), identity)
	require.NoError(t, err)
	assert.Equal(t, schema.DirectionInput, st.Drag.StartDirection)
	s.AbortGesture(ctx)

	st, err = s.StartGesture(ctx, interaction.PortRef{Node: gen.ID, Port: "text"}, geometry.Pt(240, 60), identity)
	require.NoError(t, err)
	assert.Equal(t, schema.DirectionOutput, st.Drag.StartDirection)
}

func TestGestureAbortAndEnd(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()
	gen, _ := s.AddNode(ctx, "textGeneration", schema.Position{})
	tts, _ := s.AddNode(ctx, "textToSpeech", schema.Position{X: 400})
	from := interaction.PortRef{Node: tts.ID, Port: "text", Direction: schema.DirectionInput}

	_, err := s.StartGesture(ctx, from, geometry.Pt(400, 60), identity)
	require.NoError(t, err)
	_, err = s.StartGesture(ctx, from, geometry.Pt(400, 60), identity)
	assert.Equal(t, schema.ErrCodeInvalidTransition, schema.CodeOf(err))

	s.Input(ctx, interaction.InputEvent{Kind: interaction.InputPointerLeave})
	assert.Equal(t, interaction.PhaseIdle, s.Gesture().Phase)
	assert.Equal(t, 0, s.Subscribers())
	s.AbortGesture(ctx)

	_, err = s.StartGesture(ctx, from, geometry.Pt(400, 60), identity)
	require.NoError(t, err)
	out, err := s.EndGesture(ctx, &interaction.PortRef{Node: gen.ID, Port: "text", Direction: schema.DirectionOutput})
	require.NoError(t, err)
	require.True(t, out.Connected)
	assert.Equal(t, gen.ID, out.Edge.SourceNode)
	assert.Equal(t, "text", out.Edge.SourcePort)
	assert.Equal(t, tts.ID, out.Edge.TargetNode)
	assert.Equal(t, 0, s.Subscribers())

	_, err = s.EndGesture(ctx, nil)
	assert.Equal(t, schema.ErrCodeInvalidTransition, schema.CodeOf(err))
}

func TestExportShape(t *testing.T) {
	s := newTestSession(t, nil)
	doc := s.Export()
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, DocumentVersion, doc.Version)
	assert.NotNil(t, doc.Nodes)
	assert.NotNil(t, doc.Connections)
	assert.NotNil(t, doc.GlobalState.Variables)
	assert.Equal(t, "2026-03-14T09:30:00Z", doc.Metadata.Created)
	assert.Equal(t, "2026-03-14T09:30:00Z", doc.Metadata.Modified)

	raw, err := s.ExportJSON()
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, []any{}, generic["nodes"])
	assert.Equal(t, []any{}, generic["connections"])
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestSession(t, nil)
	gen, _ := src.AddNode(ctx, "textGeneration", schema.Position{X: 1.5, Y: -2})
	tts, _ := src.AddNode(ctx, "textToSpeech", schema.Position{X: 400})
	img, _ := src.AddNode(ctx, "imageGeneration", schema.Position{X: 400, Y: 300})
	require.NoError(t, src.UpdateConfig(ctx, gen.ID, "model", "GPT-4"))
	_, err := src.Connect(ctx, graph.Endpoint{Node: gen.ID, Port: "text"}, graph.Endpoint{Node: tts.ID, Port: "text"}, "speak",
		[]schema.TransformationRule{{Type: "cel", Params: map[string]any{"expression": "payload"}}})
	require.NoError(t, err)
	_, err = src.Connect(ctx, graph.Endpoint{Node: gen.ID, Port: "text"}, graph.Endpoint{Node: img.ID, Port: "prompt"}, "", nil)
	require.NoError(t, err)
	src.SetMetadata(schema.WorkflowMetadata{Name: "demo", Author: "ana"})

	raw, err := src.ExportJSON()
	require.NoError(t, err)

	dst := newTestSession(t, nil)
	result, err := dst.Import(ctx, raw)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	want, got := src.Snapshot(), dst.Snapshot()
	assert.Equal(t, want.Nodes, got.Nodes)
	assert.Equal(t, want.Edges, got.Edges)
	assert.Equal(t, src.WorkflowID(), dst.WorkflowID())
	assert.Equal(t, "demo", dst.Export().Metadata.Name)
	assert.False(t, dst.Dirty())

	// The id counter continues past imported ids.
	n, err := dst.AddNode(ctx, "speechToText", schema.Position{})
	require.NoError(t, err)
	assert.Equal(t, "speechToText-4", n.ID)
	assert.True(t, dst.Dirty())
}

func TestUndeclaredConfigKeySurvivesRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestSession(t, nil)
	gen, _ := src.AddNode(ctx, "textGeneration", schema.Position{})
	require.NoError(t, src.UpdateConfig(ctx, gen.ID, "temperature", 0.7))

	raw, err := src.ExportJSON()
	require.NoError(t, err)

	dst := newTestSession(t, nil)
	result, err := dst.Import(ctx, raw)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "nodes[0].configuration.temperature", result.Warnings[0].Path)

	nodes := dst.Snapshot().Nodes
	require.Len(t, nodes, 1)
	assert.Equal(t, 0.7, nodes[0].Configuration["temperature"])
	assert.Equal(t, "GPT-3.5 Turbo", nodes[0].Configuration["model"])
}

func TestImportInvalidLeavesGraph(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, nil)
	_, err := s.AddNode(ctx, "textGeneration", schema.Position{})
	require.NoError(t, err)
	before := s.Snapshot()

	raw := []byte(`{
	  "id": "wf", "version": "1.0.0",
	  "nodes": [
	    {"id": "a", "type": "textGeneration", "position": {"x": 0, "y": 0}, "configuration": {"color": "red"}},
	    {"id": "b", "type": "warpDrive", "position": {"x": 0, "y": 0}}
	  ],
	  "connections": [
	    {"id": "c1", "sourceNode": "a", "sourcePort": "text", "targetNode": "ghost", "targetPort": "text"}
	  ]
	}`)
	result, err := s.Import(ctx, raw)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
	assert.ElementsMatch(t, []string{
		"nodes[1].type",
		"connections[0].targetNode",
	}, result.Paths())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "nodes[0].configuration.color", result.Warnings[0].Path)
	assert.Equal(t, before, s.Snapshot())

	_, err = s.Import(ctx, []byte(`{"id": "wf"}`))
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
	assert.Equal(t, before, s.Snapshot())
}

func TestImportAbortsDrag(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, nil)
	gen, _ := s.AddNode(ctx, "textGeneration", schema.Position{})
	_, err := s.StartGesture(ctx, interaction.PortRef{Node: gen.ID, Port: "text", Direction: schema.DirectionOutput}, geometry.Pt(240, 60), identity)
	require.NoError(t, err)

	_, err = s.ImportWorkflow(ctx, s.Export())
	require.NoError(t, err)
	assert.Equal(t, interaction.PhaseIdle, s.Gesture().Phase)
	assert.Equal(t, 0, s.Subscribers())
}

func TestApplyChangesAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, nil)
	gen, _ := s.AddNode(ctx, "textGeneration", schema.Position{})
	before := s.Snapshot()

	err := s.ApplyChanges(ctx, []graph.Change{
		graph.MoveTo(gen.ID, schema.Position{X: 5, Y: 5}),
		graph.Remove("missing"),
	})
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
	assert.Equal(t, before, s.Snapshot())

	require.NoError(t, s.ApplyChanges(ctx, []graph.Change{
		graph.MoveTo(gen.ID, schema.Position{X: 5, Y: 5}),
		graph.Select(gen.ID, true),
	}))
	snap := s.Snapshot()
	assert.Equal(t, schema.Position{X: 5, Y: 5}, snap.Nodes[0].Position)
	assert.Equal(t, gen.ID, snap.Selected)
}

func TestLayoutAnchor(t *testing.T) {
	l := Layout{NodeWidth: 200, NodeHeight: 90}
	pos := schema.Position{X: 10, Y: 10}
	assert.Equal(t, geometry.Pt(10, 40), l.Anchor(pos, schema.DirectionInput, 0, 2))
	assert.Equal(t, geometry.Pt(10, 70), l.Anchor(pos, schema.DirectionInput, 1, 2))
	assert.Equal(t, geometry.Pt(210, 55), l.Anchor(pos, schema.DirectionOutput, 0, 1))
}

func TestManager(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	m := NewManager(reg, Options{})

	_, err = m.Get("")
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))

	a, err := m.Open("")
	require.NoError(t, err)
	assert.Equal(t, DefaultID, a.ID())
	again, err := m.Open(DefaultID)
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = m.Open("b")
	require.NoError(t, err)
	ids := []string{}
	for _, s := range m.List() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"b", DefaultID}, ids)

	assert.True(t, m.Close("b"))
	assert.False(t, m.Close("b"))
	assert.Len(t, m.List(), 1)
}
