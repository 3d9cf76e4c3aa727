// Package panel serves the editor's HTTP surface: a JSON API over the open
// sessions and saved workflows, and Server-Sent Events for graph changes.
package panel

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rendis/flowcanvas/internal/engine"
	"github.com/rendis/flowcanvas/internal/session"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
)

// PanelDeps holds the dependencies for the panel server. Store and Executor
// may be nil, in which case persistence and run routes answer 503.
type PanelDeps struct {
	Sessions *session.Manager
	Store    store.Store
	Executor *engine.Executor
	Hub      streaming.EventHub
	Logger   *slog.Logger
}

// PanelServer serves the HTTP API.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for all panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/catalog", s.handleCatalog)

	// Sessions.
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{sid}/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/sessions/{sid}/nodes", s.handleAddNode)
	mux.HandleFunc("PUT /api/sessions/{sid}/nodes/{id}/config", s.handleUpdateConfig)
	mux.HandleFunc("POST /api/sessions/{sid}/changes", s.handleChanges)
	mux.HandleFunc("POST /api/sessions/{sid}/edges", s.handleConnect)
	mux.HandleFunc("POST /api/sessions/{sid}/edges/check", s.handleCheckConnection)
	mux.HandleFunc("DELETE /api/sessions/{sid}/edges/{id}", s.handleRemoveEdge)
	mux.HandleFunc("POST /api/sessions/{sid}/edges/{id}/preview", s.handlePreviewEdge)
	mux.HandleFunc("GET /api/sessions/{sid}/gesture", s.handleGestureState)
	mux.HandleFunc("POST /api/sessions/{sid}/gesture/start", s.handleGestureStart)
	mux.HandleFunc("POST /api/sessions/{sid}/gesture/input", s.handleGestureInput)
	mux.HandleFunc("POST /api/sessions/{sid}/gesture/end", s.handleGestureEnd)
	mux.HandleFunc("POST /api/sessions/{sid}/gesture/abort", s.handleGestureAbort)
	mux.HandleFunc("GET /api/sessions/{sid}/export", s.handleExport)
	mux.HandleFunc("POST /api/sessions/{sid}/import", s.handleImport)
	mux.HandleFunc("GET /api/sessions/{sid}/diagram", s.handleDiagram)
	mux.HandleFunc("POST /api/sessions/{sid}/save", s.handleSave)
	mux.HandleFunc("POST /api/sessions/{sid}/load", s.handleLoad)
	mux.HandleFunc("POST /api/sessions/{sid}/runs", s.handleExecuteSession)

	// Saved workflows.
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}/versions", s.handleListVersions)
	mux.HandleFunc("GET /api/workflows/{id}/versions/{version}", s.handleGetVersion)
	mux.HandleFunc("POST /api/workflows/{id}/runs", s.handleExecuteWorkflow)

	// Runs.
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunState)
	mux.HandleFunc("GET /api/runs/{id}/logs", s.handleRunLogs)
	mux.HandleFunc("GET /api/runs/{id}/results", s.handleRunResults)
	mux.HandleFunc("POST /api/runs/{id}/cancel", s.handleCancelRun)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/sessions/{sid}", s.handleSSESession)

	return s.logRequests(mux)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *PanelServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.deps.Logger.Debug("panel request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
