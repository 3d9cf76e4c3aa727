package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/interaction"
	"github.com/rendis/flowcanvas/internal/session"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// handleCatalog lists node types by category.
func (s *FlowcanvasServer) handleCatalog(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog := s.sessions.Catalog()
	if category := req.GetString("category", ""); category != "" {
		return marshalResult(map[string]any{
			"category": category,
			"types":    catalog.ByCategory(schema.NodeCategory(category)),
		})
	}
	return marshalResult(map[string]any{"groups": catalog.Groups()})
}

// handleAddNode places a node explicitly or at the surface centre.
func (s *FlowcanvasServer) handleAddNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeID, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type is required"), nil
	}
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}

	var node graph.Node
	if width := req.GetFloat("surface_width", 0); width > 0 {
		surface := geometry.Size{Width: width, Height: req.GetFloat("surface_height", 0)}
		offset := geometry.SingleClickOffset
		if req.GetBool("double", false) {
			offset = geometry.DoubleClickOffset
		}
		node, err = sess.PlaceNode(ctx, typeID, surface, viewportOf(req), offset)
	} else {
		pos := schema.Position{X: req.GetFloat("x", 0), Y: req.GetFloat("y", 0)}
		node, err = sess.AddNode(ctx, typeID, pos)
	}
	if err != nil {
		return errorResult("add node failed", err), nil
	}
	return marshalResult(node)
}

// handleApplyChanges applies a structural change batch.
func (s *FlowcanvasServer) handleApplyChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Changes []graph.Change `json:"changes"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid changes: %v", err)), nil
	}
	if len(args.Changes) == 0 {
		return mcp.NewToolResultError("changes is required"), nil
	}
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	if err := sess.ApplyChanges(ctx, args.Changes); err != nil {
		return errorResult("changes rejected", err), nil
	}
	return marshalResult(sess.Snapshot())
}

// handleUpdateConfig sets one configuration key.
func (s *FlowcanvasServer) handleUpdateConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node")
	if err != nil {
		return mcp.NewToolResultError("node is required"), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError("key is required"), nil
	}
	value, ok := req.GetArguments()["value"]
	if !ok {
		return mcp.NewToolResultError("value is required"), nil
	}
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	if err := sess.UpdateConfig(ctx, nodeID, key, value); err != nil {
		return errorResult("update config failed", err), nil
	}
	return marshalResult(map[string]any{"node": nodeID, "key": key, "value": value})
}

// handleConnect creates, or with dry_run only checks, a connection.
func (s *FlowcanvasServer) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		SourceNode string                      `json:"source_node"`
		SourcePort string                      `json:"source_port"`
		TargetNode string                      `json:"target_node"`
		TargetPort string                      `json:"target_port"`
		Name       string                      `json:"name"`
		Rules      []schema.TransformationRule `json:"rules"`
		DryRun     bool                        `json:"dry_run"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SourceNode == "" || args.SourcePort == "" || args.TargetNode == "" || args.TargetPort == "" {
		return mcp.NewToolResultError("source_node, source_port, target_node and target_port are required"), nil
	}
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}

	source := graph.Endpoint{Node: args.SourceNode, Port: args.SourcePort}
	target := graph.Endpoint{Node: args.TargetNode, Port: args.TargetPort}
	if args.DryRun {
		return marshalResult(sess.CheckConnection(source, target))
	}
	edge, err := sess.Connect(ctx, source, target, args.Name, args.Rules)
	if err != nil {
		return errorResult("connection rejected", err), nil
	}
	return marshalResult(edge)
}

// handleRemoveEdge deletes a connection.
func (s *FlowcanvasServer) handleRemoveEdge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	edgeID, err := req.RequireString("edge")
	if err != nil {
		return mcp.NewToolResultError("edge is required"), nil
	}
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	if !sess.RemoveEdge(ctx, edgeID) {
		return mcp.NewToolResultError(fmt.Sprintf("edge %q does not exist", edgeID)), nil
	}
	return marshalResult(map[string]any{"ok": true, "edge": edgeID})
}

// handleGesture drives the drag-to-connect controller.
func (s *FlowcanvasServer) handleGesture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}

	point := geometry.Pt(req.GetFloat("x", 0), req.GetFloat("y", 0))
	port := portOf(req)

	switch action {
	case "start":
		if port == nil {
			return mcp.NewToolResultError("node and port are required to start a gesture"), nil
		}
		st, err := sess.StartGesture(ctx, *port, point, viewportOf(req))
		if err != nil {
			return errorResult("gesture start failed", err), nil
		}
		return marshalResult(st)
	case "move", "release":
		ev := interaction.InputEvent{
			Kind:     interaction.InputPointerMove,
			Point:    point,
			Viewport: viewportOf(req),
		}
		// Without an explicit seq the move follows the last applied one.
		if _, explicit := req.GetArguments()["seq"]; explicit {
			ev.Seq = uint64(max(req.GetInt("seq", 0), 0))
		} else if d := sess.Gesture().Drag; d != nil {
			ev.Seq = d.NextSeq()
		}
		if action == "release" {
			ev.Kind = interaction.InputPointerUp
			ev.Target = port
		}
		return marshalResult(sess.Input(ctx, ev))
	case "end":
		outcome, err := sess.EndGesture(ctx, port)
		if err != nil {
			return errorResult("gesture end failed", err), nil
		}
		return marshalResult(outcome)
	case "abort":
		sess.AbortGesture(ctx)
		return marshalResult(sess.Gesture())
	case "state":
		return marshalResult(sess.Gesture())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown gesture action: %s", action)), nil
	}
}

// handleSnapshot returns the canvas contents.
func (s *FlowcanvasServer) handleSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	return marshalResult(map[string]any{
		"session":  sess.ID(),
		"snapshot": sess.Snapshot(),
		"dirty":    sess.Dirty(),
		"gesture":  sess.Gesture(),
	})
}

// handleExport returns the workflow document.
func (s *FlowcanvasServer) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	return marshalResult(sess.Export())
}

// handleImport replaces the canvas with a validated document.
func (s *FlowcanvasServer) handleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var raw []byte
	if doc, ok := req.GetArguments()["document"]; ok && doc != nil {
		data, err := json.Marshal(doc)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
		}
		raw = data
	} else if text := req.GetString("document_json", ""); text != "" {
		raw = []byte(text)
	} else {
		return mcp.NewToolResultError("document or document_json is required"), nil
	}

	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	result, err := sess.Import(ctx, raw)
	if err != nil {
		return errorResult("import failed", err), nil
	}
	return marshalResult(map[string]any{
		"workflow_id": sess.WorkflowID(),
		"revision":    sess.Revision(),
		"warnings":    result.Warnings,
	})
}

// handleDiagram renders the canvas. Images come back as base64 image content.
func (s *FlowcanvasServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	out, err := diagram.Render(ctx, sess.Diagram(), req.GetString("format", ""))
	if err != nil {
		return errorResult("diagram render failed", err), nil
	}
	if out.Binary() {
		encoded := base64.StdEncoding.EncodeToString(out.Data)
		return mcp.NewToolResultImage(fmt.Sprintf("workflow %s", sess.WorkflowID()), encoded, out.ContentType), nil
	}
	return mcp.NewToolResultText(string(out.Data)), nil
}

// handlePreviewEdge evaluates a connection's rules on a sample payload.
func (s *FlowcanvasServer) handlePreviewEdge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	edgeID, err := req.RequireString("edge")
	if err != nil {
		return mcp.NewToolResultError("edge is required"), nil
	}
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	preview, err := sess.PreviewEdge(ctx, edgeID, req.GetArguments()["payload"])
	if err != nil {
		return errorResult("preview failed", err), nil
	}
	return marshalResult(preview)
}

// handleSave persists the canvas.
func (s *FlowcanvasServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("workflow store is not configured"), nil
	}
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	wf, err := sess.Save(ctx, s.store, session.SaveOptions{
		Version:     req.GetBool("version", false),
		Description: req.GetString("description", ""),
	})
	if err != nil {
		return errorResult("save failed", err), nil
	}
	return marshalResult(map[string]any{
		"workflow_id":        wf.ID,
		"name":               wf.Name,
		"current_version_id": wf.CurrentVersionID,
		"updated_at":         wf.UpdatedAt,
	})
}

// handleLoad imports a saved workflow into the canvas.
func (s *FlowcanvasServer) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("workflow store is not configured"), nil
	}
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	sess, res := s.openSession(ctx, req)
	if res != nil {
		return res, nil
	}
	if err := sess.Load(ctx, s.store, workflowID, req.GetInt("version", 0)); err != nil {
		return errorResult("load failed", err), nil
	}
	return marshalResult(sess.Snapshot())
}

// handleListWorkflows lists saved workflows or one workflow's versions.
func (s *FlowcanvasServer) handleListWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("workflow store is not configured"), nil
	}
	if workflowID := req.GetString("workflow_id", ""); workflowID != "" {
		versions, err := s.store.ListVersions(ctx, workflowID)
		if err != nil {
			return errorResult("query failed", err), nil
		}
		return marshalResult(map[string]any{"workflow_id": workflowID, "versions": versions})
	}

	workflows, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{
		NameContains: req.GetString("name_contains", ""),
		Limit:        req.GetInt("limit", 50),
		Offset:       req.GetInt("offset", 0),
	})
	if err != nil {
		return errorResult("query failed", err), nil
	}
	summaries := make([]map[string]any, 0, len(workflows))
	for _, wf := range workflows {
		summaries = append(summaries, map[string]any{
			"id":                 wf.ID,
			"name":               wf.Name,
			"description":        wf.Description,
			"current_version_id": wf.CurrentVersionID,
			"updated_at":         wf.UpdatedAt,
		})
	}
	return marshalResult(map[string]any{"workflows": summaries})
}

// --- Internal helpers ---

// openSession resolves the session argument and records the calling client
// as a watcher of that session.
func (s *FlowcanvasServer) openSession(ctx context.Context, req mcp.CallToolRequest) (*session.Session, *mcp.CallToolResult) {
	sess, err := s.sessions.Open(req.GetString("session", session.DefaultID))
	if err != nil {
		return nil, errorResult("open session failed", err)
	}
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		s.watches.Register(sess.ID(), cs.SessionID())
	}
	return sess, nil
}

func viewportOf(req mcp.CallToolRequest) geometry.Viewport {
	vp := geometry.DefaultViewport()
	vp.Pan = geometry.Pt(req.GetFloat("pan_x", vp.Pan.X), req.GetFloat("pan_y", vp.Pan.Y))
	vp.Zoom = req.GetFloat("zoom", vp.Zoom)
	return vp
}

// portOf returns the node/port pair of the request, nil if either is
// missing. An omitted direction is resolved from the node type.
func portOf(req mcp.CallToolRequest) *interaction.PortRef {
	node, port := req.GetString("node", ""), req.GetString("port", "")
	if node == "" || port == "" {
		return nil
	}
	return &interaction.PortRef{
		Node:      node,
		Port:      port,
		Direction: schema.PortDirection(req.GetString("direction", "")),
	}
}

// errorResult formats err for the agent. Details of a FlowError (the
// offending paths of an invalid document, the rejection reason of a
// connection) are appended as JSON.
func errorResult(prefix string, err error) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s: %v", prefix, err)
	var fe *schema.FlowError
	if errors.As(err, &fe) && len(fe.Details) > 0 {
		if details, mErr := json.Marshal(fe.Details); mErr == nil {
			msg += "\ndetails: " + string(details)
		}
	}
	return mcp.NewToolResultError(msg)
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
