package panel

import (
	"io"
	"net/http"

	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/interaction"
	"github.com/rendis/flowcanvas/internal/session"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// maxImportBytes bounds an imported document.
const maxImportBytes = 8 << 20

type sessionSummary struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	Revision   uint64 `json:"revision"`
	Dirty      bool   `json:"dirty"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
}

func (s *PanelServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Sessions.Catalog().Groups())
}

func (s *PanelServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.deps.Sessions.List()
	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		snap := sess.Snapshot()
		out = append(out, sessionSummary{
			ID:         sess.ID(),
			WorkflowID: sess.WorkflowID(),
			Revision:   snap.Revision,
			Dirty:      sess.Dirty(),
			Nodes:      len(snap.Nodes),
			Edges:      len(snap.Edges),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *PanelServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// addNodeRequest places a node either at an explicit canvas position or at
// the centre of the visible surface, offset by the click kind.
type addNodeRequest struct {
	Type     string             `json:"type"`
	Position *schema.Position   `json:"position,omitempty"`
	Surface  *geometry.Size     `json:"surface,omitempty"`
	Viewport *geometry.Viewport `json:"viewport,omitempty"`
	Double   bool               `json:"double,omitempty"`
}

func (s *PanelServer) handleAddNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req addNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		node graph.Node
		err  error
	)
	switch {
	case req.Position != nil:
		node, err = sess.AddNode(r.Context(), req.Type, *req.Position)
	case req.Surface != nil:
		vp := geometry.DefaultViewport()
		if req.Viewport != nil {
			vp = *req.Viewport
		}
		offset := geometry.SingleClickOffset
		if req.Double {
			offset = geometry.DoubleClickOffset
		}
		node, err = sess.PlaceNode(r.Context(), req.Type, *req.Surface, vp, offset)
	default:
		writeError(w, http.StatusBadRequest, "either position or surface is required")
		return
	}
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *PanelServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	nodeID := r.PathValue("id")
	if err := sess.UpdateConfig(r.Context(), nodeID, req.Key, req.Value); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": nodeID, "key": req.Key, "value": req.Value})
}

func (s *PanelServer) handleChanges(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var batch []graph.Change
	if !decodeBody(w, r, &batch) {
		return
	}
	if err := sess.ApplyChanges(r.Context(), batch); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type connectRequest struct {
	Source graph.Endpoint              `json:"source"`
	Target graph.Endpoint              `json:"target"`
	Name   string                      `json:"name,omitempty"`
	Rules  []schema.TransformationRule `json:"rules,omitempty"`
}

func (s *PanelServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	edge, err := sess.Connect(r.Context(), req.Source, req.Target, req.Name, req.Rules)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (s *PanelServer) handleCheckConnection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, sess.CheckConnection(req.Source, req.Target))
}

func (s *PanelServer) handleRemoveEdge(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	edgeID := r.PathValue("id")
	if !sess.RemoveEdge(r.Context(), edgeID) {
		writeFlowError(w, schema.NewErrorf(schema.ErrCodeNotFound, "edge %q does not exist", edgeID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handlePreviewEdge(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Payload any `json:"payload"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	preview, err := sess.PreviewEdge(r.Context(), r.PathValue("id"), req.Payload)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *PanelServer) handleGestureState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Gesture())
}

func (s *PanelServer) handleGestureStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req struct {
		From     interaction.PortRef `json:"from"`
		Point    geometry.Point      `json:"point"`
		Viewport *geometry.Viewport  `json:"viewport,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	vp := geometry.DefaultViewport()
	if req.Viewport != nil {
		vp = *req.Viewport
	}
	st, err := sess.StartGesture(r.Context(), req.From, req.Point, vp)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *PanelServer) handleGestureInput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var ev interaction.InputEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	writeJSON(w, http.StatusOK, sess.Input(r.Context(), ev))
}

func (s *PanelServer) handleGestureEnd(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Target *interaction.PortRef `json:"target,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	outcome, err := sess.EndGesture(r.Context(), req.Target)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *PanelServer) handleGestureAbort(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	sess.AbortGesture(r.Context())
	writeJSON(w, http.StatusOK, sess.Gesture())
}

func (s *PanelServer) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	data, err := sess.ExportJSON()
	if err != nil {
		writeFlowError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+sess.WorkflowID()+`.json"`)
	}
	_, _ = w.Write(data)
}

func (s *PanelServer) handleImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	result, err := sess.Import(r.Context(), raw)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": sess.WorkflowID(),
		"warnings":    result.Warnings,
		"snapshot":    sess.Snapshot(),
	})
}

func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	out, err := diagram.Render(r.Context(), sess.Diagram(), r.URL.Query().Get("format"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	_, _ = w.Write(out.Data)
}

func (s *PanelServer) handleSave(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Version     bool   `json:"version"`
		Description string `json:"description,omitempty"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	wf, err := sess.Save(r.Context(), s.deps.Store, session.SaveOptions{Version: req.Version, Description: req.Description})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *PanelServer) handleLoad(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req struct {
		WorkflowID string `json:"workflow_id"`
		Version    int    `json:"version,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sess.Load(r.Context(), s.deps.Store, req.WorkflowID, req.Version); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}
