// Package mcp exposes editing sessions as Model Context Protocol tools so an
// agent can build, inspect and persist workflows.
package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcanvas/internal/engine"
	"github.com/rendis/flowcanvas/internal/session"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
)

// FlowcanvasServerDeps holds the dependencies for creating a FlowcanvasServer.
// Store may be nil, which disables the persistence tools, and Executor may
// be nil, which disables the run tools.
type FlowcanvasServerDeps struct {
	Sessions *session.Manager
	Store    store.Store
	Executor *engine.Executor
	Hub      streaming.EventHub
	Version  string
	Logger   *slog.Logger
}

// FlowcanvasServer wraps an MCP server with the editor's tool handlers.
type FlowcanvasServer struct {
	sessions  *session.Manager
	store     store.Store
	executor  *engine.Executor
	hub       streaming.EventHub
	watches   *WatchRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowcanvasServer creates a FlowcanvasServer with every tool registered.
func NewFlowcanvasServer(deps FlowcanvasServerDeps) *FlowcanvasServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &FlowcanvasServer{
		sessions: deps.Sessions,
		store:    deps.Store,
		executor: deps.Executor,
		hub:      deps.Hub,
		watches:  NewWatchRegistry(),
		logger:   logger,
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, cs server.ClientSession) {
		s.watches.Remove(cs.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"flowcanvas",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Flowcanvas edits AI workflow graphs. Start with flow.catalog to see node types and their ports, "+
			"add nodes with flow.add_node, wire an output port to an input port with flow.connect, and inspect the result "+
			"with flow.snapshot or flow.diagram. Run the graph with flow.execute and follow it with flow.run_state. Every tool takes an optional session argument; omit it to use the default canvas."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowcanvasServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler returns a streamable HTTP transport for the same tools.
func (s *FlowcanvasServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// RunNotifications pushes session events to the MCP clients that touched the
// session until ctx is cancelled. Without a hub it returns immediately.
func (s *FlowcanvasServer) RunNotifications(ctx context.Context) error {
	if s.hub == nil {
		return nil
	}
	return NewEventNotifier(s.mcpServer, s.watches, s.logger).Run(ctx, s.hub)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowcanvasServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *FlowcanvasServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: catalogTool(), Handler: s.handleCatalog},
		{Tool: addNodeTool(), Handler: s.handleAddNode},
		{Tool: applyChangesTool(), Handler: s.handleApplyChanges},
		{Tool: updateConfigTool(), Handler: s.handleUpdateConfig},
		{Tool: connectTool(), Handler: s.handleConnect},
		{Tool: removeEdgeTool(), Handler: s.handleRemoveEdge},
		{Tool: gestureTool(), Handler: s.handleGesture},
		{Tool: snapshotTool(), Handler: s.handleSnapshot},
		{Tool: exportTool(), Handler: s.handleExport},
		{Tool: importTool(), Handler: s.handleImport},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: previewEdgeTool(), Handler: s.handlePreviewEdge},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: loadTool(), Handler: s.handleLoad},
		{Tool: listWorkflowsTool(), Handler: s.handleListWorkflows},
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: cancelRunTool(), Handler: s.handleCancelRun},
		{Tool: runStateTool(), Handler: s.handleRunState},
		{Tool: runLogsTool(), Handler: s.handleRunLogs},
		{Tool: runResultsTool(), Handler: s.handleRunResults},
		{Tool: listRunsTool(), Handler: s.handleListRuns},
	}
}

// --- Tool definitions ---

func sessionArg() mcp.ToolOption {
	return mcp.WithString("session", mcp.Description("Canvas session id (default: \"default\")"))
}

func viewportArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("pan_x", mcp.Description("Viewport pan x in screen pixels")),
		mcp.WithNumber("pan_y", mcp.Description("Viewport pan y in screen pixels")),
		mcp.WithNumber("zoom", mcp.Description("Viewport zoom factor (default: 0.5)")),
	}
}

func catalogTool() mcp.Tool {
	return mcp.NewTool("flow.catalog",
		mcp.WithDescription("List the node types grouped by toolbar category"),
		mcp.WithString("category", mcp.Description("Only list node types of this category")),
	)
}

func addNodeTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Add a node to the canvas, either at a canvas position or at the centre of the visible surface"),
		sessionArg(),
		mcp.WithString("type", mcp.Required(), mcp.Description("Node type id from flow.catalog")),
		mcp.WithNumber("x", mcp.Description("Canvas x position")),
		mcp.WithNumber("y", mcp.Description("Canvas y position")),
		mcp.WithNumber("surface_width", mcp.Description("Visible surface width; when set the node is placed at the surface centre")),
		mcp.WithNumber("surface_height", mcp.Description("Visible surface height")),
		mcp.WithBoolean("double", mcp.Description("Place as a double click, 100 screen pixels below the centre")),
	}
	return mcp.NewTool("flow.add_node", append(opts, viewportArgs()...)...)
}

func applyChangesTool() mcp.Tool {
	return mcp.NewTool("flow.apply_changes",
		mcp.WithDescription("Apply a batch of move, remove and select changes atomically"),
		sessionArg(),
		mcp.WithArray("changes", mcp.Required(),
			mcp.Description(`Changes such as {"type":"position","id":"n","position":{"x":0,"y":0}}, {"type":"remove","id":"n"} or {"type":"select","id":"n","selected":true}`),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)
}

func updateConfigTool() mcp.Tool {
	return mcp.NewTool("flow.update_config",
		mcp.WithDescription("Set one configuration value of a node"),
		sessionArg(),
		mcp.WithString("node", mcp.Required(), mcp.Description("Node id")),
		mcp.WithString("key", mcp.Required(), mcp.Description("Configuration key")),
		mcp.WithAny("value", mcp.Required(), mcp.Description("New value")),
	)
}

func connectTool() mcp.Tool {
	return mcp.NewTool("flow.connect",
		mcp.WithDescription("Connect an output port to an input port"),
		sessionArg(),
		mcp.WithString("source_node", mcp.Required(), mcp.Description("Source node id")),
		mcp.WithString("source_port", mcp.Required(), mcp.Description("Output port id of the source node")),
		mcp.WithString("target_node", mcp.Required(), mcp.Description("Target node id")),
		mcp.WithString("target_port", mcp.Required(), mcp.Description("Input port id of the target node")),
		mcp.WithString("name", mcp.Description("Connection label")),
		mcp.WithArray("rules",
			mcp.Description(`Transformation rules, e.g. {"type":"jq","params":{"expression":".text"}}; types jq, cel and expr are evaluated`),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithBoolean("dry_run", mcp.Description("Only report whether the connection would be accepted")),
	)
}

func removeEdgeTool() mcp.Tool {
	return mcp.NewTool("flow.remove_edge",
		mcp.WithDescription("Remove a connection"),
		sessionArg(),
		mcp.WithString("edge", mcp.Required(), mcp.Description("Connection id")),
	)
}

func gestureTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Drive a drag-to-connect gesture step by step, as a pointer on the canvas would"),
		sessionArg(),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("start", "move", "release", "end", "abort", "state"),
			mcp.Description("start on a port, move the pointer, release over a target, end with an explicit target, abort, or read the state"),
		),
		mcp.WithString("node", mcp.Description("Port owner for start, or release/end target")),
		mcp.WithString("port", mcp.Description("Port id for start, or release/end target")),
		mcp.WithString("direction", mcp.Enum("input", "output"),
			mcp.Description("Side of the port (default: the side the node type declares it on)")),
		mcp.WithNumber("x", mcp.Description("Pointer x in screen pixels")),
		mcp.WithNumber("y", mcp.Description("Pointer y in screen pixels")),
		mcp.WithNumber("seq", mcp.Description("Move sequence number; moves not newer than the last one are ignored (default: next)")),
	}
	return mcp.NewTool("flow.gesture", append(opts, viewportArgs()...)...)
}

func snapshotTool() mcp.Tool {
	return mcp.NewTool("flow.snapshot",
		mcp.WithDescription("Get the nodes, connections, selection and revision of a canvas"),
		sessionArg(),
	)
}

func exportTool() mcp.Tool {
	return mcp.NewTool("flow.export",
		mcp.WithDescription("Export the canvas as a workflow document"),
		sessionArg(),
	)
}

func importTool() mcp.Tool {
	return mcp.NewTool("flow.import",
		mcp.WithDescription("Replace the canvas with a workflow document; invalid documents leave the canvas untouched"),
		sessionArg(),
		mcp.WithObject("document", mcp.Description("Workflow document object")),
		mcp.WithString("document_json", mcp.Description("Workflow document as a JSON string")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flow.diagram",
		mcp.WithDescription("Render the canvas as Mermaid flowchart syntax, ASCII art, a PNG image, SVG or graphviz dot"),
		sessionArg(),
		mcp.WithString("format",
			mcp.Enum("mermaid", "ascii", "png", "svg", "dot"),
			mcp.Description("Output format (default: mermaid)"),
		),
	)
}

func previewEdgeTool() mcp.Tool {
	return mcp.NewTool("flow.preview_edge",
		mcp.WithDescription("Run the transformation rules of a connection over a sample payload"),
		sessionArg(),
		mcp.WithString("edge", mcp.Required(), mcp.Description("Connection id")),
		mcp.WithAny("payload", mcp.Required(), mcp.Description("Sample payload")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("flow.save",
		mcp.WithDescription("Save the canvas to the workflow store"),
		sessionArg(),
		mcp.WithBoolean("version", mcp.Description("Also record an immutable version")),
		mcp.WithString("description", mcp.Description("Version description")),
	)
}

func loadTool() mcp.Tool {
	return mcp.NewTool("flow.load",
		mcp.WithDescription("Load a saved workflow, or one of its versions, into the canvas"),
		sessionArg(),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Saved workflow id")),
		mcp.WithNumber("version", mcp.Description("Version number (default: latest saved document)")),
	)
}

func listWorkflowsTool() mcp.Tool {
	return mcp.NewTool("flow.list_workflows",
		mcp.WithDescription("List saved workflows, or the versions of one workflow"),
		mcp.WithString("name_contains", mcp.Description("Filter by name substring")),
		mcp.WithString("workflow_id", mcp.Description("List the versions of this workflow instead")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default: 50)")),
		mcp.WithNumber("offset", mcp.Description("Results to skip")),
	)
}
