package panel

import (
	"net/http"
	"strconv"

	"github.com/rendis/flowcanvas/internal/engine"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// executeRequest is the optional body of the run routes.
type executeRequest struct {
	Inputs  map[string]map[string]any `json:"inputs"`
	Wait    bool                      `json:"wait"`
	Version int                       `json:"version"`
}

func (s *PanelServer) handleExecuteSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireExecutor(w) {
		return
	}
	var body executeRequest
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	s.execute(w, r, engine.Request{Workflow: sess.Export(), SessionID: sess.ID(), Inputs: body.Inputs}, body.Wait)
}

func (s *PanelServer) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	if !s.requireExecutor(w) || !s.requireStore(w) {
		return
	}
	var body executeRequest
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	doc, err := store.LoadDocument(r.Context(), s.deps.Store, r.PathValue("id"), body.Version)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	s.execute(w, r, engine.Request{Workflow: doc, Inputs: body.Inputs}, body.Wait)
}

// execute starts a run. Without wait it answers 202 with the queued run;
// with wait it answers 200 with the final state.
func (s *PanelServer) execute(w http.ResponseWriter, r *http.Request, req engine.Request, wait bool) {
	run, err := s.deps.Executor.Start(r.Context(), req)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if !wait {
		writeJSON(w, http.StatusAccepted, run)
		return
	}
	if _, err := s.deps.Executor.Wait(r.Context(), run.ID); err != nil {
		writeFlowError(w, err)
		return
	}
	st, err := s.deps.Executor.State(r.Context(), run.ID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *PanelServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireExecutor(w) {
		return
	}
	q := r.URL.Query()
	runs, err := s.deps.Executor.ListRuns(r.Context(), store.RunFilter{
		WorkflowID: q.Get("workflow_id"),
		Status:     schema.RunStatus(q.Get("status")),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *PanelServer) handleRunState(w http.ResponseWriter, r *http.Request) {
	if !s.requireExecutor(w) {
		return
	}
	st, err := s.deps.Executor.State(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *PanelServer) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireExecutor(w) {
		return
	}
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: "+v)
			return
		}
		since = n
	}
	logs, err := s.deps.Executor.Logs(r.Context(), r.PathValue("id"), since, queryInt(r, "limit", 100))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *PanelServer) handleRunResults(w http.ResponseWriter, r *http.Request) {
	if !s.requireExecutor(w) {
		return
	}
	id := r.PathValue("id")
	results, err := s.deps.Executor.Results(r.Context(), id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "results": results})
}

func (s *PanelServer) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireExecutor(w) {
		return
	}
	run, err := s.deps.Executor.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
