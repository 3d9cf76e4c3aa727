package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// runLogs returns every RunLog implementation under test.
func runLogs(t *testing.T) map[string]RunLog {
	return map[string]RunLog{
		"libsql": NewEventLog(newTestStore(t)),
		"memory": NewMemoryRunLog(),
	}
}

func TestRunLog_CreateUpdateGet(t *testing.T) {
	for name, log := range runLogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := &Run{
				WorkflowID: "wf-1",
				SessionID:  "sess-1",
				Status:     schema.RunStatusQueued,
				NodeCount:  2,
				Document:   sampleDoc("wf-1", "Narrate"),
			}
			require.NoError(t, log.CreateRun(ctx, run))
			require.NotEmpty(t, run.ID)
			assert.False(t, run.StartedAt.IsZero())

			run.Status = schema.RunStatusFailed
			run.Progress = 50
			run.CurrentNode = "textToSpeech-2"
			run.Error = "boom"
			ended := run.StartedAt.Add(3 * time.Second)
			run.EndedAt = &ended
			require.NoError(t, log.UpdateRun(ctx, run))

			got, err := log.GetRun(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, schema.RunStatusFailed, got.Status)
			assert.Equal(t, "sess-1", got.SessionID)
			assert.InDelta(t, 50.0, got.Progress, 1e-9)
			assert.Equal(t, "textToSpeech-2", got.CurrentNode)
			assert.Equal(t, "boom", got.Error)
			assert.Equal(t, 2, got.NodeCount)
			require.NotNil(t, got.EndedAt)
			assert.True(t, ended.Equal(*got.EndedAt))
			require.NotNil(t, got.Document)
			assert.Len(t, got.Document.Nodes, 2)

			_, err = log.GetRun(ctx, "missing")
			assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
			err = log.UpdateRun(ctx, &Run{ID: "missing", Status: schema.RunStatusRunning})
			assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
		})
	}
}

func TestRunLog_ListRuns(t *testing.T) {
	for name, log := range runLogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []string
			for i, wf := range []string{"wf-a", "wf-b", "wf-a"} {
				run := &Run{WorkflowID: wf, Status: schema.RunStatusCompleted, Document: sampleDoc(wf, "x")}
				if i == 1 {
					run.Status = schema.RunStatusFailed
				}
				require.NoError(t, log.CreateRun(ctx, run))
				ids = append(ids, run.ID)
			}

			all, err := log.ListRuns(ctx, RunFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			for _, r := range all {
				assert.Nil(t, r.Document)
			}

			byWorkflow, err := log.ListRuns(ctx, RunFilter{WorkflowID: "wf-a"})
			require.NoError(t, err)
			assert.Len(t, byWorkflow, 2)

			failed, err := log.ListRuns(ctx, RunFilter{Status: schema.RunStatusFailed})
			require.NoError(t, err)
			require.Len(t, failed, 1)
			assert.Equal(t, ids[1], failed[0].ID)

			paged, err := log.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
			require.NoError(t, err)
			assert.Len(t, paged, 1)
		})
	}
}

func TestRunLog_AppendAndReadEvents(t *testing.T) {
	for name, log := range runLogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := &Run{WorkflowID: "wf-1", Status: schema.RunStatusRunning}
			require.NoError(t, log.CreateRun(ctx, run))

			inputs, _ := json.Marshal(NodeEventPayload{Inputs: map[string]any{"prompt": map[string]any{"text": "hi"}}})
			outputs, _ := json.Marshal(NodeEventPayload{Outputs: map[string]any{"text": map[string]any{"text": "hello"}}})
			events := []*RunEvent{
				{RunID: run.ID, Type: schema.EventRunStarted},
				{RunID: run.ID, NodeID: "gen", Type: schema.EventNodeStarted, Payload: inputs},
				{RunID: run.ID, NodeID: "gen", Type: schema.EventNodeCompleted, Payload: outputs},
				{RunID: run.ID, NodeID: "tts", Type: schema.EventNodeSkipped},
			}
			for i, e := range events {
				require.NoError(t, log.AppendEvent(ctx, e))
				assert.Equal(t, int64(i+1), e.Sequence)
				assert.False(t, e.Timestamp.IsZero())
			}

			n, err := log.CountEvents(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			tail, err := log.GetEvents(ctx, run.ID, 2, 0)
			require.NoError(t, err)
			require.Len(t, tail, 2)
			assert.Equal(t, int64(3), tail[0].Sequence)
			assert.JSONEq(t, string(outputs), string(tail[0].Payload))
			assert.Equal(t, "tts", tail[1].NodeID)
			assert.Nil(t, tail[1].Payload)

			one, err := log.GetEvents(ctx, run.ID, 0, 1)
			require.NoError(t, err)
			require.Len(t, one, 1)
			assert.Equal(t, schema.EventRunStarted, one[0].Type)

			all, err := log.GetEvents(ctx, run.ID, 0, 0)
			require.NoError(t, err)
			states, err := ReplayNodeStates(run.ID, all)
			require.NoError(t, err)
			require.Len(t, states, 2)
			assert.Equal(t, schema.NodeStatusCompleted, states["gen"].Status)
			assert.JSONEq(t, `{"prompt":{"text":"hi"}}`, string(states["gen"].Inputs))
			assert.JSONEq(t, `{"text":{"text":"hello"}}`, string(states["gen"].Outputs))
			assert.Equal(t, schema.NodeStatusSkipped, states["tts"].Status)
		})
	}
}

func TestMemoryRunLog_AppendToUnknownRun(t *testing.T) {
	err := NewMemoryRunLog().AppendEvent(context.Background(), &RunEvent{RunID: "nope", Type: schema.EventRunStarted})
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestEventLog_ReplayEvents(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog(newTestStore(t))
	run := &Run{WorkflowID: "wf-1", Status: schema.RunStatusRunning}
	require.NoError(t, log.CreateRun(ctx, run))

	failed, _ := json.Marshal(NodeEventPayload{Error: "model unavailable"})
	require.NoError(t, log.AppendEvent(ctx, &RunEvent{RunID: run.ID, NodeID: "gen", Type: schema.EventNodeStarted}))
	require.NoError(t, log.AppendEvent(ctx, &RunEvent{RunID: run.ID, NodeID: "gen", Type: schema.EventNodeFailed, Payload: failed}))

	states, err := log.ReplayEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Contains(t, states, "gen")
	assert.Equal(t, schema.NodeStatusFailed, states["gen"].Status)
	assert.Equal(t, "model unavailable", states["gen"].Error)
	// The test clock advances one second per read.
	assert.Equal(t, int64(1000), states["gen"].DurationMs)
}

func TestReplayNodeStates_DetectsGaps(t *testing.T) {
	_, err := ReplayNodeStates("run-1", []*RunEvent{
		{Sequence: 1, Type: schema.EventRunStarted},
		{Sequence: 3, NodeID: "gen", Type: schema.EventNodeStarted},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeStore, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "expected 2, got 3")

	states, err := ReplayNodeStates("run-1", nil)
	require.NoError(t, err)
	assert.Empty(t, states)
}
