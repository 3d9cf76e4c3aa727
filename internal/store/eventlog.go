package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// EventLog implements RunLog on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a migrated LibSQLStore.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// CreateRun inserts a run. Empty ids and start times are filled in.
func (el *EventLog) CreateRun(ctx context.Context, run *Run) error {
	if run == nil {
		return schema.NewError(schema.ErrCodeValidation, "run is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = el.store.now()
	}
	var doc any
	if run.Document != nil {
		data, err := json.Marshal(run.Document)
		if err != nil {
			return fmt.Errorf("marshal run document: %w", err)
		}
		doc = string(data)
	}

	_, err := el.store.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_id, session_id, status, progress, current_node, node_count, error, document, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, nullStr(run.SessionID), string(run.Status), run.Progress,
		nullStr(run.CurrentNode), run.NodeCount, nullStr(run.Error), doc, run.StartedAt, nullTime(run.EndedAt),
	)
	if err != nil {
		return storeError("create run", run.ID, err)
	}
	return nil
}

// UpdateRun stores the mutable summary fields of a run.
func (el *EventLog) UpdateRun(ctx context.Context, run *Run) error {
	res, err := el.store.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, progress = ?, current_node = ?, error = ?, ended_at = ? WHERE id = ?`,
		string(run.Status), run.Progress, nullStr(run.CurrentNode), nullStr(run.Error), nullTime(run.EndedAt), run.ID,
	)
	if err != nil {
		return storeError("update run", run.ID, err)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (el *EventLog) GetRun(ctx context.Context, id string) (*Run, error) {
	row := el.store.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, session_id, status, progress, current_node, node_count, error, document, started_at, ended_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, storeError("get run", id, err)
	}
	return run, nil
}

// ListRuns returns run summaries without their documents.
func (el *EventLog) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT id, workflow_id, session_id, status, progress, current_node, node_count, error, NULL, started_at, ended_at
		FROM runs WHERE 1 = 1`
	var args []any
	if filter.WorkflowID != "" {
		query += ` AND workflow_id = ?`
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := el.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list runs", "", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, storeError("list runs", "", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// AppendEvent appends an event with the next per-run sequence. Reading the
// sequence and inserting share one transaction.
func (el *EventLog) AppendEvent(ctx context.Context, event *RunEvent) error {
	tx, err := el.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = el.store.now()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, nullStr(event.NodeID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return storeError("append run event", event.RunID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run event: %w", err)
	}
	event.Sequence = seq
	event.ID, _ = res.LastInsertId()
	return nil
}

func (el *EventLog) GetEvents(ctx context.Context, runID string, since int64, limit int) ([]*RunEvent, error) {
	query := `SELECT id, run_id, node_id, event_type, payload, timestamp, sequence
		FROM run_events WHERE run_id = ? AND sequence > ? ORDER BY sequence`
	args := []any{runID, since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := el.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("get run events", runID, err)
	}
	defer rows.Close()

	var out []*RunEvent
	for rows.Next() {
		var (
			e       RunEvent
			nodeID  sql.NullString
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RunID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, storeError("get run events", runID, err)
		}
		e.NodeID = nodeID.String
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (el *EventLog) CountEvents(ctx context.Context, runID string) (int, error) {
	var n int
	err := el.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_events WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, storeError("count run events", runID, err)
	}
	return n, nil
}

// ReplayEvents rebuilds the node states of a run from its stored events.
func (el *EventLog) ReplayEvents(ctx context.Context, runID string) (map[string]*NodeState, error) {
	events, err := el.GetEvents(ctx, runID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}
	return ReplayNodeStates(runID, events)
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                              Run
		status                           string
		sessionID, current, errText, doc sql.NullString
		ended                            sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.WorkflowID, &sessionID, &status, &run.Progress, &current,
		&run.NodeCount, &errText, &doc, &run.StartedAt, &ended); err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	run.SessionID = sessionID.String
	run.CurrentNode = current.String
	run.Error = errText.String
	if ended.Valid {
		t := ended.Time
		run.EndedAt = &t
	}
	if doc.Valid && doc.String != "" {
		if err := json.Unmarshal([]byte(doc.String), &run.Document); err != nil {
			return nil, fmt.Errorf("unmarshal run document: %w", err)
		}
	}
	return &run, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var _ RunLog = (*EventLog)(nil)
