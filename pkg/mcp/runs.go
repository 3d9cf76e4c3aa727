package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/flowcanvas/internal/engine"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func executeTool() mcp.Tool {
	return mcp.NewTool("flow.execute",
		mcp.WithDescription("Run a workflow: the canvas of a session, or a saved workflow when workflow_id is set. "+
			"Nodes run in dependency order; follow progress with flow.run_state"),
		sessionArg(),
		mcp.WithString("workflow_id", mcp.Description("Run this saved workflow instead of the canvas")),
		mcp.WithNumber("version", mcp.Description("Version of the saved workflow (default: latest saved document)")),
		mcp.WithObject("inputs",
			mcp.Description(`Payloads for input ports without a connection, by node and port: {"node-id":{"prompt":{"text":"..."}}}`)),
		mcp.WithBoolean("wait", mcp.Description("Block until the run finishes and return its state")),
	)
}

func runIDArg() mcp.ToolOption {
	return mcp.WithString("run_id", mcp.Required(), mcp.Description("Run id from flow.execute"))
}

func cancelRunTool() mcp.Tool {
	return mcp.NewTool("flow.cancel_run",
		mcp.WithDescription("Cancel a queued or running run"),
		runIDArg(),
	)
}

func runStateTool() mcp.Tool {
	return mcp.NewTool("flow.run_state",
		mcp.WithDescription("Get the status, progress and per-node state of a run"),
		runIDArg(),
	)
}

func runLogsTool() mcp.Tool {
	return mcp.NewTool("flow.run_logs",
		mcp.WithDescription("Read the event log of a run"),
		runIDArg(),
		mcp.WithNumber("since", mcp.Description("Only events after this sequence number")),
		mcp.WithNumber("limit", mcp.Description("Maximum events (default: 100)")),
	)
}

func runResultsTool() mcp.Tool {
	return mcp.NewTool("flow.run_results",
		mcp.WithDescription("Get the outputs of every node of a completed run"),
		runIDArg(),
	)
}

func listRunsTool() mcp.Tool {
	return mcp.NewTool("flow.list_runs",
		mcp.WithDescription("List runs, newest first"),
		mcp.WithString("workflow_id", mcp.Description("Only runs of this workflow")),
		mcp.WithString("status", mcp.Enum("queued", "running", "completed", "failed", "cancelled"),
			mcp.Description("Only runs with this status")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default: 50)")),
		mcp.WithNumber("offset", mcp.Description("Results to skip")),
	)
}

// handleExecute starts a run of the canvas or of a saved workflow.
func (s *FlowcanvasServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.executor == nil {
		return mcp.NewToolResultError("workflow executor is not configured"), nil
	}
	inputs, err := inputsOf(req.GetArguments()["inputs"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var execReq engine.Request
	if workflowID := req.GetString("workflow_id", ""); workflowID != "" {
		if s.store == nil {
			return mcp.NewToolResultError("workflow store is not configured"), nil
		}
		doc, err := store.LoadDocument(ctx, s.store, workflowID, req.GetInt("version", 0))
		if err != nil {
			return errorResult("load failed", err), nil
		}
		execReq = engine.Request{Workflow: doc}
	} else {
		sess, res := s.openSession(ctx, req)
		if res != nil {
			return res, nil
		}
		execReq = engine.Request{Workflow: sess.Export(), SessionID: sess.ID()}
	}
	execReq.Inputs = inputs

	run, err := s.executor.Start(ctx, execReq)
	if err != nil {
		return errorResult("execute failed", err), nil
	}
	s.logger.InfoContext(ctx, "run started", "run_id", run.ID, "workflow_id", run.WorkflowID, "nodes", run.NodeCount)
	if !req.GetBool("wait", false) {
		return marshalResult(map[string]any{
			"run_id":      run.ID,
			"workflow_id": run.WorkflowID,
			"status":      run.Status,
			"node_count":  run.NodeCount,
		})
	}
	if _, err := s.executor.Wait(ctx, run.ID); err != nil {
		return errorResult("wait failed", err), nil
	}
	return s.runState(ctx, run.ID)
}

func (s *FlowcanvasServer) handleCancelRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, res := s.requireRun(req)
	if res != nil {
		return res, nil
	}
	run, err := s.executor.Cancel(ctx, runID)
	if err != nil {
		return errorResult("cancel failed", err), nil
	}
	return marshalResult(map[string]any{"run_id": run.ID, "status": run.Status})
}

func (s *FlowcanvasServer) handleRunState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, res := s.requireRun(req)
	if res != nil {
		return res, nil
	}
	return s.runState(ctx, runID)
}

func (s *FlowcanvasServer) handleRunLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, res := s.requireRun(req)
	if res != nil {
		return res, nil
	}
	logs, err := s.executor.Logs(ctx, runID, int64(req.GetInt("since", 0)), req.GetInt("limit", 100))
	if err != nil {
		return errorResult("query failed", err), nil
	}
	return marshalResult(logs)
}

func (s *FlowcanvasServer) handleRunResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, res := s.requireRun(req)
	if res != nil {
		return res, nil
	}
	results, err := s.executor.Results(ctx, runID)
	if err != nil {
		return errorResult("query failed", err), nil
	}
	return marshalResult(map[string]any{"run_id": runID, "results": results})
}

func (s *FlowcanvasServer) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.executor == nil {
		return mcp.NewToolResultError("workflow executor is not configured"), nil
	}
	runs, err := s.executor.ListRuns(ctx, store.RunFilter{
		WorkflowID: req.GetString("workflow_id", ""),
		Status:     schema.RunStatus(req.GetString("status", "")),
		Limit:      req.GetInt("limit", 50),
		Offset:     req.GetInt("offset", 0),
	})
	if err != nil {
		return errorResult("query failed", err), nil
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *FlowcanvasServer) runState(ctx context.Context, runID string) (*mcp.CallToolResult, error) {
	st, err := s.executor.State(ctx, runID)
	if err != nil {
		return errorResult("query failed", err), nil
	}
	return marshalResult(st)
}

func (s *FlowcanvasServer) requireRun(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	if s.executor == nil {
		return "", mcp.NewToolResultError("workflow executor is not configured")
	}
	runID, err := req.RequireString("run_id")
	if err != nil {
		return "", mcp.NewToolResultError("run_id is required")
	}
	return runID, nil
}

// inputsOf reads the inputs argument: an object of node ids to objects of
// port ids to payloads.
func inputsOf(raw any) (map[string]map[string]any, error) {
	if raw == nil {
		return nil, nil
	}
	byNode, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("inputs must be an object of node ids, got %T", raw)
	}
	out := make(map[string]map[string]any, len(byNode))
	for nodeID, ports := range byNode {
		byPort, ok := ports.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("inputs.%s must be an object of port ids, got %T", nodeID, ports)
		}
		out[nodeID] = byPort
	}
	return out, nil
}
