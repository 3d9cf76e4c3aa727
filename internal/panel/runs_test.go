package panel

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/engine"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// connectPair adds a connected text generator and speech synthesizer to s1.
func (e *testEnv) connectPair(t *testing.T) (string, string) {
	t.Helper()
	gen, tts := e.addPair(t)
	rec := e.do(t, http.MethodPost, "/api/sessions/s1/edges", map[string]any{
		"source": graph.Endpoint{Node: gen, Port: "text"},
		"target": graph.Endpoint{Node: tts, Port: "text"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return gen, tts
}

func TestExecuteSessionRoute(t *testing.T) {
	env := newTestEnv(t, false)
	gen, tts := env.connectPair(t)

	rec := env.do(t, http.MethodPost, "/api/sessions/s1/runs", map[string]any{
		"wait":   true,
		"inputs": map[string]any{gen: map[string]any{"prompt": map[string]any{"text": "tide pools"}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[engine.RunState](t, rec)
	assert.Equal(t, schema.RunStatusCompleted, st.Status)
	assert.Equal(t, "s1", st.SessionID)
	assert.Equal(t, schema.NodeStatusCompleted, st.Nodes[tts].Status)

	rec = env.do(t, http.MethodGet, "/api/runs/"+st.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, st.RunID, decode[engine.RunState](t, rec).RunID)

	rec = env.do(t, http.MethodGet, "/api/runs/"+st.RunID+"/logs?since=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[engine.RunLogs](t, rec)
	assert.Equal(t, 6, logs.Total)
	require.Len(t, logs.Logs, 1)
	assert.Equal(t, schema.EventRunCompleted, logs.Logs[0].Type)

	rec = env.do(t, http.MethodGet, "/api/runs/"+st.RunID+"/logs?since=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/runs/"+st.RunID+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[struct {
		Results map[string]any `json:"results"`
	}](t, rec)
	assert.Len(t, results.Results, 2)

	rec = env.do(t, http.MethodGet, "/api/runs?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Run](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/api/runs/"+st.RunID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, schema.ErrCodeInvalidTransition, errorCode(t, rec))
}

func TestExecuteSessionRoute_Background(t *testing.T) {
	env := newTestEnv(t, false)
	env.connectPair(t)

	ch, unsubscribe, err := env.hub.Subscribe(context.Background(), streaming.EventFilter{
		SessionID:  "s1",
		EventTypes: []string{schema.EventRunFailed},
	})
	require.NoError(t, err)
	defer unsubscribe()

	// No body: the generator's prompt has no value, so the run fails.
	rec := env.do(t, http.MethodPost, "/api/sessions/s1/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	run := decode[store.Run](t, rec)
	assert.Equal(t, schema.RunStatusQueued, run.Status)

	_, err = env.executor.Wait(context.Background(), run.ID)
	require.NoError(t, err)
	ev := <-ch
	assert.Equal(t, schema.EventRunFailed, ev.EventType)

	rec = env.do(t, http.MethodGet, "/api/runs/"+run.ID+"/results", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, schema.ErrCodeRunNotCompleted, errorCode(t, rec))
}

func TestExecuteRouteErrors(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/sessions/empty/runs", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, schema.ErrCodeValidation, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/sessions/s1/runs", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/runs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/workflows/wf/runs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExecuteWorkflowRoute(t *testing.T) {
	env := newTestEnv(t, true)
	gen, _ := env.connectPair(t)

	rec := env.do(t, http.MethodPost, "/api/sessions/s1/save", map[string]any{"version": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	wf := decode[store.Workflow](t, rec)

	rec = env.do(t, http.MethodPost, "/api/workflows/"+wf.ID+"/runs", map[string]any{
		"wait":    true,
		"version": 1,
		"inputs":  map[string]any{gen: map[string]any{"prompt": map[string]any{"text": "x"}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[engine.RunState](t, rec)
	assert.Equal(t, schema.RunStatusCompleted, st.Status)
	assert.Equal(t, wf.ID, st.WorkflowID)

	rec = env.do(t, http.MethodGet, "/api/runs?workflow_id="+wf.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Run](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/api/workflows/missing/runs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunRoutesWithoutExecutor(t *testing.T) {
	handler := NewPanelServer(PanelDeps{Sessions: newTestEnv(t, false).sessions}).Handler()
	for _, route := range [][2]string{
		{http.MethodPost, "/api/sessions/s1/runs"},
		{http.MethodGet, "/api/runs"},
		{http.MethodGet, "/api/runs/r1"},
		{http.MethodPost, "/api/runs/r1/cancel"},
	} {
		env := &testEnv{handler: handler}
		rec := env.do(t, route[0], route[1], nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, route[1])
	}
}
