package panel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/engine"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/registry"
	"github.com/rendis/flowcanvas/internal/session"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/pkg/schema"
)

type testEnv struct {
	handler  http.Handler
	sessions *session.Manager
	hub      *streaming.MemoryHub
	executor *engine.Executor
}

func newTestEnv(t *testing.T, withStore bool) *testEnv {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := streaming.NewMemoryHub()
	sessions := session.NewManager(reg, session.Options{Hub: hub, Logger: logger})

	deps := PanelDeps{Sessions: sessions, Hub: hub, Logger: logger}
	opts := engine.Options{Catalog: reg, Hub: hub, Logger: logger}
	if withStore {
		st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "panel.db"))
		require.NoError(t, err)
		require.NoError(t, st.Migrate(context.Background()))
		t.Cleanup(func() { _ = st.Close() })
		deps.Store = st
		opts.Log = store.NewEventLog(st)
	}
	ex, err := engine.NewExecutor(opts)
	require.NoError(t, err)
	t.Cleanup(ex.Shutdown)
	deps.Executor = ex
	return &testEnv{handler: NewPanelServer(deps).Handler(), sessions: sessions, hub: hub, executor: ex}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, rec)
	return body.Error.Code
}

// addPair adds a text generator feeding a speech synthesizer and returns
// their ids.
func (e *testEnv) addPair(t *testing.T) (string, string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sessions/s1/nodes", map[string]any{
		"type": "textGeneration", "position": map[string]float64{"x": 0, "y": 0},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gen := decode[graph.Node](t, rec)

	rec = e.do(t, http.MethodPost, "/api/sessions/s1/nodes", map[string]any{
		"type": "textToSpeech", "position": map[string]float64{"x": 400, "y": 0},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tts := decode[graph.Node](t, rec)
	return gen.ID, tts.ID
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	groups := decode[[]registry.CategoryGroup](t, rec)
	require.NotEmpty(t, groups)
	assert.Equal(t, schema.CategoryAIService, groups[0].Category)
}

func TestAddNodeAndSnapshot(t *testing.T) {
	env := newTestEnv(t, false)
	gen, _ := env.addPair(t)

	rec := env.do(t, http.MethodGet, "/api/sessions/s1/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[graph.Snapshot](t, rec)
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, gen, snap.Nodes[0].ID)
	assert.Equal(t, "GPT-3.5 Turbo", snap.Nodes[0].Configuration["model"])

	rec = env.do(t, http.MethodGet, "/api/sessions", nil)
	summaries := decode[[]sessionSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, "s1", summaries[0].ID)
	assert.True(t, summaries[0].Dirty)
	assert.Equal(t, 2, summaries[0].Nodes)
}

func TestAddNodeErrors(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/sessions/s1/nodes", map[string]any{
		"type": "nope", "position": map[string]float64{"x": 0, "y": 0},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, schema.ErrCodeUnknownType, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/nodes", map[string]any{"type": "textGeneration"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/nodes", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceNode(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodPost, "/api/sessions/s1/nodes", map[string]any{
		"type":     "speechToText",
		"surface":  map[string]float64{"width": 800, "height": 600},
		"viewport": map[string]any{"pan": map[string]float64{"x": 100, "y": 0}, "zoom": 0.5},
		"double":   true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	node := decode[graph.Node](t, rec)
	assert.Equal(t, schema.Position{X: 600, Y: 800}, node.Position)
}

func TestConnectAndRemoveEdge(t *testing.T) {
	env := newTestEnv(t, false)
	gen, tts := env.addPair(t)

	req := map[string]any{
		"source": graph.Endpoint{Node: gen, Port: "text"},
		"target": graph.Endpoint{Node: tts, Port: "text"},
	}
	rec := env.do(t, http.MethodPost, "/api/sessions/s1/edges/check", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[graph.Verdict](t, rec).Accepted)

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/edges", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	edge := decode[graph.Edge](t, rec)

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/edges", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, schema.ErrCodeConnectionRejected, errorCode(t, rec))

	rec = env.do(t, http.MethodDelete, "/api/sessions/s1/edges/"+edge.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/sessions/s1/edges/"+edge.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangesAndConfig(t *testing.T) {
	env := newTestEnv(t, false)
	gen, tts := env.addPair(t)

	rec := env.do(t, http.MethodPut, "/api/sessions/s1/nodes/"+gen+"/config", map[string]any{"key": "maxTokens", "value": 512})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/changes", []graph.Change{
		graph.MoveTo(gen, schema.Position{X: 10, Y: 20}),
		graph.Remove(tts),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decode[graph.Snapshot](t, rec)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, schema.Position{X: 10, Y: 20}, snap.Nodes[0].Position)
	assert.EqualValues(t, 512, snap.Nodes[0].Configuration["maxTokens"])

	rec = env.do(t, http.MethodPut, "/api/sessions/s1/nodes/missing/config", map[string]any{"key": "model", "value": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGestureLifecycle(t *testing.T) {
	env := newTestEnv(t, false)
	gen, tts := env.addPair(t)

	vp := map[string]any{"pan": map[string]float64{"x": 0, "y": 0}, "zoom": 1}
	rec := env.do(t, http.MethodPost, "/api/sessions/s1/gesture/start", map[string]any{
		"from":     map[string]string{"node": gen, "port": "text"},
		"point":    map[string]float64{"x": 240, "y": 60},
		"viewport": vp,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/gesture/start", map[string]any{
		"from":  map[string]string{"node": gen, "port": "text"},
		"point": map[string]float64{"x": 0, "y": 0},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/gesture/input", map[string]any{
		"kind": "pointer_move", "point": map[string]float64{"x": 402, "y": 61}, "viewport": vp, "seq": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/gesture/end", map[string]any{
		"target": map[string]string{"node": tts, "port": "text"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"connected":true`)

	rec = env.do(t, http.MethodGet, "/api/sessions/s1/gesture", nil)
	assert.Contains(t, rec.Body.String(), `"phase":"idle"`)

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/gesture/abort", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t, false)
	env.addPair(t)

	rec := env.do(t, http.MethodGet, "/api/sessions/s1/export?download=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	exported := rec.Body.Bytes()

	rec = env.do(t, http.MethodPost, "/api/sessions/s2/import", exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/sessions/s2/snapshot", nil)
	assert.Len(t, decode[graph.Snapshot](t, rec).Nodes, 2)

	rec = env.do(t, http.MethodPost, "/api/sessions/s2/import", []byte(`{"id":"x"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, schema.ErrCodeValidation, errorCode(t, rec))
}

func TestDiagram(t *testing.T) {
	env := newTestEnv(t, false)
	env.addPair(t)

	rec := env.do(t, http.MethodGet, "/api/sessions/s1/diagram", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "graph LR"))

	rec = env.do(t, http.MethodGet, "/api/sessions/s1/diagram?format=ascii", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Text Generation")

	rec = env.do(t, http.MethodGet, "/api/sessions/s1/diagram?format=bmp", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPersistenceRoutes(t *testing.T) {
	env := newTestEnv(t, true)
	env.addPair(t)

	rec := env.do(t, http.MethodPost, "/api/sessions/s1/save", map[string]any{"version": true, "description": "v1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	wf := decode[store.Workflow](t, rec)

	rec = env.do(t, http.MethodGet, "/api/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Workflow](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/workflows/"+wf.ID+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.WorkflowVersion](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/workflows/"+wf.ID+"/versions/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/workflows/"+wf.ID+"/versions/zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/s3/load", map[string]any{"workflow_id": wf.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[graph.Snapshot](t, rec).Nodes, 2)

	rec = env.do(t, http.MethodDelete, "/api/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPersistenceWithoutStore(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodPost, "/api/sessions/s1/save", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/workflows", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSSESessionStream(t *testing.T) {
	env := newTestEnv(t, false)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/sessions/s1?types=node_added", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	// Another session's events are filtered out.
	rec := env.do(t, http.MethodPost, "/api/sessions/other/nodes", map[string]any{
		"type": "textGeneration", "position": map[string]float64{"x": 0, "y": 0},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	env.addPair(t)

	var events []string
	for len(events) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			var ev streaming.StreamEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			assert.Equal(t, "s1", ev.SessionID)
			events = append(events, ev.EventType)
		}
	}
	assert.Equal(t, []string{schema.EventNodeAdded, schema.EventNodeAdded}, events)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(schema.ErrCodeNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(schema.ErrCodeInvalidTransition))
	assert.Equal(t, http.StatusConflict, statusOf(schema.ErrCodeRunNotCompleted))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(schema.ErrCodeCycleDetected))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(schema.ErrCodeInvalidZoom))
	assert.Equal(t, http.StatusInternalServerError, statusOf(schema.ErrCodeStore))
}
