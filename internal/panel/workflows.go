package panel

import (
	"net/http"
	"strconv"

	"github.com/rendis/flowcanvas/internal/store"
)

func (s *PanelServer) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	filter := store.WorkflowFilter{
		NameContains: r.URL.Query().Get("q"),
		Limit:        queryInt(r, "limit", 50),
		Offset:       queryInt(r, "offset", 0),
	}
	wfs, err := s.deps.Store.ListWorkflows(r.Context(), filter)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if wfs == nil {
		wfs = []*store.Workflow{}
	}
	writeJSON(w, http.StatusOK, wfs)
}

func (s *PanelServer) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	wf, err := s.deps.Store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *PanelServer) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.deps.Store.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	versions, err := s.deps.Store.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if versions == nil {
		versions = []*store.WorkflowVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *PanelServer) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	n, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}
	v, err := s.deps.Store.GetVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
