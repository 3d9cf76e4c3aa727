package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// ErrExecutorClosed is returned by Start after Shutdown.
var ErrExecutorClosed = errors.New("executor is shut down")

const defaultConcurrency = 4

// Options configures an Executor. Only Catalog is required.
type Options struct {
	Catalog     Catalog
	Runners     *Runners               // default: DefaultRunners()
	Log         store.RunLog           // default: in-memory
	Rules       *expressions.Evaluator // default: cel, jq and expr engines
	Hub         streaming.EventHub     // optional; run events go to the run's session
	Concurrency int                    // nodes of one level run at once (default 4)
	Logger      *slog.Logger
	Now         func() time.Time
}

// Request describes one execution.
type Request struct {
	Workflow  *schema.Workflow
	SessionID string
	// Inputs feeds input ports that have no incoming connection:
	// node id → port id → payload.
	Inputs map[string]map[string]any
}

// RunState is a run's summary plus the replayed state of every node.
type RunState struct {
	RunID       string                      `json:"run_id"`
	WorkflowID  string                      `json:"workflow_id"`
	SessionID   string                      `json:"session_id,omitempty"`
	Status      schema.RunStatus            `json:"status"`
	Progress    float64                     `json:"progress"`
	CurrentNode string                      `json:"current_node,omitempty"`
	Error       string                      `json:"error,omitempty"`
	Nodes       map[string]*store.NodeState `json:"node_states"`
	StartedAt   time.Time                   `json:"started_at"`
	EndedAt     *time.Time                  `json:"ended_at,omitempty"`
}

// RunLogs is a page of a run's event log.
type RunLogs struct {
	RunID string            `json:"run_id"`
	Total int               `json:"total_logs"`
	Logs  []*store.RunEvent `json:"logs"`
}

// Executor runs workflows in the background and answers queries about them.
// It is safe for concurrent use.
type Executor struct {
	catalog  Catalog
	runners  *Runners
	log      store.RunLog
	rules    *expressions.Evaluator
	payloads *validation.PayloadValidator
	hub      streaming.EventHub
	workers  int
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
	closed bool
}

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExecutor creates an Executor.
func NewExecutor(opts Options) (*Executor, error) {
	if opts.Catalog == nil {
		return nil, errors.New("engine: catalog is required")
	}
	if opts.Runners == nil {
		opts.Runners = DefaultRunners()
	}
	if opts.Log == nil {
		opts.Log = store.NewMemoryRunLog()
	}
	if opts.Rules == nil {
		rules, err := expressions.NewEvaluator()
		if err != nil {
			return nil, err
		}
		opts.Rules = rules
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Executor{
		catalog:  opts.Catalog,
		runners:  opts.Runners,
		log:      opts.Log,
		rules:    opts.Rules,
		payloads: validation.NewPayloadValidator(),
		hub:      opts.Hub,
		workers:  opts.Concurrency,
		logger:   opts.Logger,
		now:      opts.Now,
		active:   make(map[string]*activeRun),
	}, nil
}

// Runners returns the runner set, for registering service clients.
func (e *Executor) Runners() *Runners { return e.runners }

// Start validates the workflow, records a queued run and executes it in the
// background. The run outlives ctx; use Cancel to stop it.
func (e *Executor) Start(ctx context.Context, req Request) (*store.Run, error) {
	dag, err := e.prepare(req.Workflow)
	if err != nil {
		return nil, err
	}
	run := &store.Run{
		ID:         uuid.NewString(),
		WorkflowID: req.Workflow.ID,
		SessionID:  req.SessionID,
		Status:     schema.RunStatusQueued,
		NodeCount:  len(dag.Nodes),
		Document:   req.Workflow,
		StartedAt:  e.now(),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrExecutorClosed
	}
	if err := e.log.CreateRun(ctx, run); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(logging.WithRunID(context.WithoutCancel(ctx), run.ID))
	ar := &activeRun{cancel: cancel, done: make(chan struct{})}
	e.active[run.ID] = ar
	e.wg.Add(1)
	e.mu.Unlock()

	queued := *run
	rs := newRunState(run, dag, req.Inputs)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.active, run.ID)
			e.mu.Unlock()
			cancel()
			close(ar.done)
		}()
		e.execute(runCtx, rs)
	}()
	return &queued, nil
}

// Execute runs the workflow to the end and returns its final state.
func (e *Executor) Execute(ctx context.Context, req Request) (*RunState, error) {
	run, err := e.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := e.Wait(ctx, run.ID); err != nil {
		return nil, err
	}
	return e.State(ctx, run.ID)
}

// Wait blocks until the run finishes or ctx ends, then returns the run.
func (e *Executor) Wait(ctx context.Context, runID string) (*store.Run, error) {
	e.mu.Lock()
	ar, ok := e.active[runID]
	e.mu.Unlock()
	if ok {
		select {
		case <-ar.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.log.GetRun(ctx, runID)
}

// Cancel stops a queued or running run and waits for it to settle. A run
// left non-terminal by an earlier process is marked cancelled directly.
func (e *Executor) Cancel(ctx context.Context, runID string) (*store.Run, error) {
	e.mu.Lock()
	ar, ok := e.active[runID]
	e.mu.Unlock()
	if ok {
		ar.cancel()
		select {
		case <-ar.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return e.log.GetRun(ctx, runID)
	}

	run, err := e.log.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition, "cannot cancel run with status %s", run.Status).
			WithDetails(map[string]any{"run_id": runID, "status": string(run.Status)})
	}
	from := run.Status
	ended := e.now()
	run.Status = schema.RunStatusCancelled
	run.EndedAt = &ended
	if err := e.log.UpdateRun(ctx, run); err != nil {
		return nil, err
	}
	if err := NewRunFSM(e.recorder(run.SessionID)).Transition(ctx, runID, from, schema.RunStatusCancelled, nil); err != nil {
		return nil, err
	}
	return run, nil
}

// State returns the run summary with node states rebuilt from its log.
// Nodes without events are reported pending.
func (e *Executor) State(ctx context.Context, runID string) (*RunState, error) {
	run, err := e.log.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	events, err := e.log.GetEvents(ctx, runID, 0, 0)
	if err != nil {
		return nil, err
	}
	nodes, err := store.ReplayNodeStates(runID, events)
	if err != nil {
		return nil, err
	}
	if run.Document != nil {
		for _, n := range run.Document.Nodes {
			if _, ok := nodes[n.ID]; !ok {
				nodes[n.ID] = &store.NodeState{NodeID: n.ID, Status: schema.NodeStatusPending}
			}
		}
	}
	return &RunState{
		RunID:       run.ID,
		WorkflowID:  run.WorkflowID,
		SessionID:   run.SessionID,
		Status:      run.Status,
		Progress:    run.Progress,
		CurrentNode: run.CurrentNode,
		Error:       run.Error,
		Nodes:       nodes,
		StartedAt:   run.StartedAt,
		EndedAt:     run.EndedAt,
	}, nil
}

// Logs returns up to limit events after sequence since.
func (e *Executor) Logs(ctx context.Context, runID string, since int64, limit int) (*RunLogs, error) {
	if _, err := e.log.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	total, err := e.log.CountEvents(ctx, runID)
	if err != nil {
		return nil, err
	}
	events, err := e.log.GetEvents(ctx, runID, since, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*store.RunEvent{}
	}
	return &RunLogs{RunID: runID, Total: total, Logs: events}, nil
}

// Results returns the outputs of every node of a completed run.
func (e *Executor) Results(ctx context.Context, runID string) (map[string]any, error) {
	st, err := e.State(ctx, runID)
	if err != nil {
		return nil, err
	}
	if st.Status != schema.RunStatusCompleted {
		return nil, schema.NewErrorf(schema.ErrCodeRunNotCompleted, "run is not completed, current status: %s", st.Status).
			WithDetails(map[string]any{"run_id": runID, "status": string(st.Status)})
	}
	out := make(map[string]any, len(st.Nodes))
	for id, ns := range st.Nodes {
		out[id] = ns.Outputs
	}
	return out, nil
}

// ListRuns lists run summaries, newest first.
func (e *Executor) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	return e.log.ListRuns(ctx, filter)
}

// Active returns the number of runs in progress.
func (e *Executor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Shutdown refuses new runs, cancels the running ones and waits for them.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	e.closed = true
	for _, ar := range e.active {
		ar.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// prepare builds the DAG and checks that every node type has a runner.
func (e *Executor) prepare(doc *schema.Workflow) (*DAG, error) {
	dag, err := ParseDAG(doc, e.catalog)
	if err != nil {
		return nil, err
	}
	for _, id := range dag.Sorted {
		typeID := dag.Nodes[id].Type
		if _, ok := e.runners.Lookup(typeID); !ok {
			return nil, schema.NewErrorf(schema.ErrCodeUnknownType, "no runner for node type %q", typeID).WithNode(id)
		}
	}
	return dag, nil
}

// execute walks the DAG level by level. Nodes of one level share a worker
// pool; the first node failure or a cancellation stops later levels.
func (e *Executor) execute(ctx context.Context, rs *runState) {
	// Recording outlives cancellation so the final events still land.
	logCtx := context.WithoutCancel(ctx)
	rec := e.recorder(rs.run.SessionID)
	runs, nodes := NewRunFSM(rec), NewNodeFSM(rec)
	logger := logging.LogWith(ctx, e.logger)

	if ctx.Err() != nil {
		e.finish(logCtx, rs, runs, nodes, schema.RunStatusCancelled)
		return
	}
	if err := runs.Transition(logCtx, rs.run.ID, schema.RunStatusQueued, schema.RunStatusRunning, nil); err != nil {
		logger.Warn("run event not recorded", "error", err)
	}
	rs.mu.Lock()
	rs.run.Status = schema.RunStatusRunning
	rs.mu.Unlock()
	e.updateRun(logCtx, rs)
	logger.Debug("run started", "levels", rs.dag.String())

	pool := NewWorkerPool(e.workers)
	for _, level := range rs.dag.Levels {
		if ctx.Err() != nil || rs.failed() {
			break
		}
		for _, id := range level {
			err := pool.Submit(ctx,
				func(ctx context.Context) error { return e.runNode(ctx, logCtx, rs, nodes, id) },
				func(p error) { e.nodePanicked(logCtx, rs, nodes, id, p) },
			)
			if err != nil {
				break
			}
		}
		pool.Wait()
	}
	pool.Shutdown()

	final := schema.RunStatusCompleted
	switch {
	case rs.failed():
		final = schema.RunStatusFailed
	case ctx.Err() != nil:
		final = schema.RunStatusCancelled
	}
	e.finish(logCtx, rs, runs, nodes, final)
}

// runNode gathers a node's inputs, runs it and records the outcome.
func (e *Executor) runNode(ctx, logCtx context.Context, rs *runState, nodes *NodeFSM, id string) error {
	node := rs.dag.Nodes[id]
	runner, _ := e.runners.Lookup(node.Type)

	inputs, gatherErr := e.gatherInputs(ctx, rs, id)
	rs.start(id)
	if err := nodes.Transition(logCtx, rs.run.ID, id, schema.NodeStatusPending, schema.NodeStatusRunning,
		store.NodeEventPayload{Inputs: inputs}); err != nil {
		e.logger.WarnContext(logCtx, "node event not recorded", "node_id", id, "error", err)
	}
	e.updateRun(logCtx, rs)
	if gatherErr != nil {
		e.failNode(logCtx, rs, nodes, id, gatherErr, true)
		return gatherErr
	}

	outputs, err := runner.Run(logging.WithNodeID(ctx, id), Invocation{
		RunID:    rs.run.ID,
		NodeID:   id,
		NodeType: node.Type,
		Inputs:   inputs,
		Config:   maps.Clone(node.Configuration),
	})
	if err == nil {
		err = e.checkOutputs(rs.dag.Types[id], id, outputs)
	}
	if err != nil {
		if ctx.Err() != nil {
			e.failNode(logCtx, rs, nodes, id,
				schema.NewErrorf(schema.ErrCodeNodeFailed, "interrupted: run cancelled").WithNode(id).WithCause(err), false)
			return err
		}
		e.failNode(logCtx, rs, nodes, id, nodeError(id, err), true)
		return err
	}

	rs.complete(id, outputs)
	if err := nodes.Transition(logCtx, rs.run.ID, id, schema.NodeStatusRunning, schema.NodeStatusCompleted,
		store.NodeEventPayload{Outputs: outputs}); err != nil {
		e.logger.WarnContext(logCtx, "node event not recorded", "node_id", id, "error", err)
	}
	e.updateRun(logCtx, rs)
	return nil
}

// gatherInputs builds the payload of every input port: the outputs of
// upstream nodes passed through each connection's rules, else the request
// input. Every payload is checked against the port's data schema.
func (e *Executor) gatherInputs(ctx context.Context, rs *runState, id string) (map[string]any, error) {
	nt := rs.dag.Types[id]
	inputs := make(map[string]any, len(nt.InputPorts))
	for _, port := range nt.InputPorts {
		var values []any
		for _, c := range rs.dag.IncomingOn(id, port.ID) {
			v, ok := rs.output(c.SourceNode, c.SourcePort)
			if !ok {
				continue
			}
			if len(c.TransformationRules) > 0 {
				p, err := e.rules.Apply(ctx, c.TransformationRules, v)
				if err != nil {
					return inputs, schema.NewErrorf(schema.ErrCodeExpression, "connection %s: %v", c.ID, err).
						WithNode(id).WithCause(err)
				}
				v = p.Output
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			if v, ok := rs.inputs[id][port.ID]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			if port.IsRequired {
				return inputs, schema.NewErrorf(schema.ErrCodeValidation, "no value provided for required input port %q", port.ID).
					WithNode(id)
			}
			continue
		}

		key := nt.ID + "/input/" + port.ID
		for _, v := range values {
			if err := e.checkPayload(key, port, id, v); err != nil {
				return inputs, err
			}
		}
		if port.AllowMultiple {
			inputs[port.ID] = values
		} else {
			inputs[port.ID] = values[len(values)-1]
		}
	}
	return inputs, nil
}

// checkOutputs requires every required output port and checks each payload.
func (e *Executor) checkOutputs(nt schema.NodeType, id string, outputs map[string]any) error {
	for _, port := range nt.OutputPorts {
		v, ok := outputs[port.ID]
		if !ok {
			if port.IsRequired {
				return schema.NewErrorf(schema.ErrCodeNodeFailed, "required output port %q has no value", port.ID).WithNode(id)
			}
			continue
		}
		if err := e.checkPayload(nt.ID+"/output/"+port.ID, port, id, v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) checkPayload(key string, port schema.PortDefinition, id string, v any) error {
	r := e.payloads.Validate(key, port.DataSchema, v)
	if r.Valid() {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "port %q: %s", port.ID, r.Errors[0].String()).
		WithNode(id).
		WithDetails(map[string]any{"port": port.ID, "issues": r.Errors})
}

func (e *Executor) failNode(logCtx context.Context, rs *runState, nodes *NodeFSM, id string, err error, failRun bool) {
	rs.setNode(id, schema.NodeStatusFailed)
	if failRun {
		rs.fail(err)
	}
	if terr := nodes.Transition(logCtx, rs.run.ID, id, schema.NodeStatusRunning, schema.NodeStatusFailed,
		store.NodeEventPayload{Error: err.Error()}); terr != nil {
		e.logger.WarnContext(logCtx, "node event not recorded", "node_id", id, "error", terr)
	}
	e.logger.InfoContext(logCtx, "node failed", "node_id", id, "error", err)
}

func (e *Executor) nodePanicked(logCtx context.Context, rs *runState, nodes *NodeFSM, id string, p error) {
	err := schema.NewErrorf(schema.ErrCodeNodeFailed, "runner %v", p).WithNode(id).WithCause(p)
	if rs.nodeStatus(id) == schema.NodeStatusRunning {
		e.failNode(logCtx, rs, nodes, id, err, true)
		return
	}
	rs.fail(err)
}

// finish skips the nodes that never ran and records the final status.
func (e *Executor) finish(logCtx context.Context, rs *runState, runs *RunFSM, nodes *NodeFSM, final schema.RunStatus) {
	for _, id := range rs.dag.Sorted {
		if rs.nodeStatus(id) != schema.NodeStatusPending {
			continue
		}
		rs.setNode(id, schema.NodeStatusSkipped)
		if err := nodes.Transition(logCtx, rs.run.ID, id, schema.NodeStatusPending, schema.NodeStatusSkipped, nil); err != nil {
			e.logger.WarnContext(logCtx, "node event not recorded", "node_id", id, "error", err)
		}
	}

	rs.mu.Lock()
	from := rs.run.Status
	ended := e.now()
	rs.run.Status = final
	rs.run.EndedAt = &ended
	var payload any
	if rs.err != nil {
		rs.run.Error = rs.err.Error()
		payload = map[string]any{"error": rs.run.Error}
	}
	rs.mu.Unlock()
	e.updateRun(logCtx, rs)

	if err := runs.Transition(logCtx, rs.run.ID, from, final, payload); err != nil {
		e.logger.WarnContext(logCtx, "run event not recorded", "error", err)
	}
	e.logger.InfoContext(logCtx, "run finished", "status", final, "progress", rs.progress())
}

func (e *Executor) updateRun(logCtx context.Context, rs *runState) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := e.log.UpdateRun(logCtx, rs.run); err != nil {
		e.logger.WarnContext(logCtx, "run not updated", "error", err)
	}
}

func (e *Executor) recorder(sessionID string) *recorder {
	return &recorder{log: e.log, hub: e.hub, sessionID: sessionID}
}

// nodeError tags err with the node, keeping FlowError codes.
func nodeError(id string, err error) error {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		if fe.NodeID == "" {
			fe.NodeID = id
		}
		return fe
	}
	return schema.NewErrorf(schema.ErrCodeNodeFailed, "%v", err).WithNode(id).WithCause(err)
}

// recorder appends run events to the log and mirrors them on the event hub
// under the run's session.
type recorder struct {
	log       store.RunLog
	hub       streaming.EventHub
	sessionID string
}

func (r *recorder) AppendEvent(ctx context.Context, event *store.RunEvent) error {
	if err := r.log.AppendEvent(ctx, event); err != nil {
		return err
	}
	if r.hub == nil || r.sessionID == "" {
		return nil
	}
	// A closed hub only loses the live copy.
	_ = r.hub.Publish(ctx, streaming.StreamEvent{
		SessionID: r.sessionID,
		NodeID:    event.NodeID,
		EventType: event.Type,
		Payload: map[string]any{
			"run_id":   event.RunID,
			"sequence": event.Sequence,
			"data":     event.Payload,
		},
	})
	return nil
}

// runState is the in-flight bookkeeping of one run.
type runState struct {
	mu      sync.Mutex
	run     *store.Run
	dag     *DAG
	inputs  map[string]map[string]any
	status  map[string]schema.NodeStatus
	outputs map[string]map[string]any
	done    int
	err     error
}

func newRunState(run *store.Run, dag *DAG, inputs map[string]map[string]any) *runState {
	rs := &runState{
		run:     run,
		dag:     dag,
		inputs:  inputs,
		status:  make(map[string]schema.NodeStatus, len(dag.Nodes)),
		outputs: make(map[string]map[string]any, len(dag.Nodes)),
	}
	for id := range dag.Nodes {
		rs.status[id] = schema.NodeStatusPending
	}
	return rs
}

func (rs *runState) start(id string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status[id] = schema.NodeStatusRunning
	rs.run.CurrentNode = id
}

func (rs *runState) complete(id string, outputs map[string]any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status[id] = schema.NodeStatusCompleted
	rs.outputs[id] = outputs
	rs.done++
	rs.run.Progress = float64(rs.done) / float64(len(rs.dag.Nodes)) * 100
}

func (rs *runState) setNode(id string, st schema.NodeStatus) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status[id] = st
}

func (rs *runState) nodeStatus(id string) schema.NodeStatus {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.status[id]
}

func (rs *runState) output(node, port string) (any, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	v, ok := rs.outputs[node][port]
	return v, ok
}

// fail records the first node error of the run.
func (rs *runState) fail(err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.err == nil {
		rs.err = err
	}
}

func (rs *runState) failed() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.err != nil
}

func (rs *runState) progress() float64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.run.Progress
}
