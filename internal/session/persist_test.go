package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	src := newTestSession(t, nil)
	gen, _ := src.AddNode(ctx, "textGeneration", schema.Position{X: 5})
	tts, _ := src.AddNode(ctx, "textToSpeech", schema.Position{X: 400})
	_, err := src.Connect(ctx, graph.Endpoint{Node: gen.ID, Port: "text"}, graph.Endpoint{Node: tts.ID, Port: "text"}, "", nil)
	require.NoError(t, err)
	assert.True(t, src.Dirty())

	wf, err := src.Save(ctx, st, SaveOptions{Version: true, Description: "first"})
	require.NoError(t, err)
	assert.False(t, src.Dirty())
	assert.NotEmpty(t, wf.CurrentVersionID)

	require.NoError(t, src.UpdateConfig(ctx, gen.ID, "model", "GPT-4"))
	_, err = src.Save(ctx, st, SaveOptions{})
	require.NoError(t, err)

	latest := newTestSession(t, nil)
	require.NoError(t, latest.Load(ctx, st, wf.ID, 0))
	assert.Equal(t, src.Snapshot().Nodes, latest.Snapshot().Nodes)

	first := newTestSession(t, nil)
	require.NoError(t, first.Load(ctx, st, wf.ID, 1))
	n, ok := first.graph.Node(gen.ID)
	require.True(t, ok)
	assert.Equal(t, "GPT-3.5 Turbo", n.Configuration["model"])

	err = first.Load(ctx, st, "missing", 0)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}
