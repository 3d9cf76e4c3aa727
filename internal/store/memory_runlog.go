package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// MemoryRunLog is an in-process RunLog for servers without a database.
// Records are copied on the way in and out.
type MemoryRunLog struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	events map[string][]*RunEvent
	nextID int64
	now    func() time.Time
}

// NewMemoryRunLog creates an empty MemoryRunLog.
func NewMemoryRunLog() *MemoryRunLog {
	return &MemoryRunLog{
		runs:   make(map[string]*Run),
		events: make(map[string][]*RunEvent),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRunLog) CreateRun(_ context.Context, run *Run) error {
	if run == nil {
		return schema.NewError(schema.ErrCodeValidation, "run is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, dup := m.runs[run.ID]; dup {
		return schema.NewErrorf(schema.ErrCodeStore, "run %q already exists", run.ID)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = m.now()
	}
	m.runs[run.ID] = copyRun(run)
	return nil
}

func (m *MemoryRunLog) UpdateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.runs[run.ID]
	if !ok {
		return storeNotFound("run", run.ID)
	}
	stored.Status = run.Status
	stored.Progress = run.Progress
	stored.CurrentNode = run.CurrentNode
	stored.Error = run.Error
	stored.EndedAt = copyTime(run.EndedAt)
	return nil
}

func (m *MemoryRunLog) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, storeNotFound("run", id)
	}
	return copyRun(run), nil
}

func (m *MemoryRunLog) ListRuns(_ context.Context, filter RunFilter) ([]*Run, error) {
	m.mu.RLock()
	var out []*Run
	for _, run := range m.runs {
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		c := copyRun(run)
		c.Document = nil
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (m *MemoryRunLog) AppendEvent(_ context.Context, event *RunEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[event.RunID]; !ok {
		return storeNotFound("run", event.RunID)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}
	m.nextID++
	event.ID = m.nextID
	event.Sequence = int64(len(m.events[event.RunID]) + 1)
	c := *event
	m.events[event.RunID] = append(m.events[event.RunID], &c)
	return nil
}

func (m *MemoryRunLog) GetEvents(_ context.Context, runID string, since int64, limit int) ([]*RunEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*RunEvent
	for _, e := range m.events[runID] {
		if e.Sequence <= since {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryRunLog) CountEvents(_ context.Context, runID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events[runID]), nil
}

func copyRun(r *Run) *Run {
	c := *r
	c.EndedAt = copyTime(r.EndedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func page[T any](items []T, offset, limit int) []T {
	offset = max(offset, 0)
	if offset > len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ RunLog = (*MemoryRunLog)(nil)
