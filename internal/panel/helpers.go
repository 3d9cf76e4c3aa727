package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rendis/flowcanvas/internal/session"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a plain JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"message": msg}})
}

// writeFlowError maps an error to an HTTP status. FlowErrors keep their code
// and details in the body.
func writeFlowError(w http.ResponseWriter, err error) {
	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusOf(fe.Code), map[string]any{"error": fe})
}

func statusOf(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConnectionRejected, schema.ErrCodeInvalidTransition, schema.ErrCodeRunNotCompleted:
		return http.StatusConflict
	case schema.ErrCodeValidation, schema.ErrCodeUnknownType, schema.ErrCodeUnknownNode,
		schema.ErrCodeUnknownPort, schema.ErrCodeInvalidZoom, schema.ErrCodeExpression,
		schema.ErrCodeCycleDetected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for routes whose body may be empty.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// openSession opens the session named by the {sid} path value.
func (s *PanelServer) openSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Open(r.PathValue("sid"))
	if err != nil {
		writeFlowError(w, err)
		return nil, false
	}
	return sess, true
}

// requireStore answers 503 when persistence is not configured.
func (s *PanelServer) requireStore(w http.ResponseWriter) bool {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "workflow store is not configured")
		return false
	}
	return true
}

// requireExecutor answers 503 when workflow execution is not configured.
func (s *PanelServer) requireExecutor(w http.ResponseWriter) bool {
	if s.deps.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "workflow executor is not configured")
		return false
	}
	return true
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
