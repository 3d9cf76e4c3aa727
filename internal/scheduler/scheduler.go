// Package scheduler persists dirty editing sessions on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/session"
	"github.com/rendis/flowcanvas/internal/store"
)

// DefaultSpec saves once a minute.
const DefaultSpec = "@every 1m"

// Sessions lists the sessions to autosave. Satisfied by *session.Manager.
type Sessions interface {
	List() []*session.Session
}

// Config tunes the autosaver.
type Config struct {
	// Spec is a five-field cron expression or a descriptor such as
	// "@every 30s" or "@hourly". Empty uses DefaultSpec.
	Spec string
	// Versioned records a workflow version on every autosave.
	Versioned bool
}

// Autosaver saves every dirty session to the store when its schedule fires.
type Autosaver struct {
	sessions Sessions
	store    store.Store
	schedule cron.Schedule
	spec     string
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // session ids being saved
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec validates a schedule expression.
func ParseSpec(spec string) (cron.Schedule, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse autosave schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// New creates an Autosaver. It fails when the schedule does not parse.
func New(sessions Sessions, st store.Store, cfg Config, logger *slog.Logger) (*Autosaver, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	schedule, err := ParseSpec(cfg.Spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Autosaver{
		sessions: sessions,
		store:    st,
		schedule: schedule,
		spec:     cfg.Spec,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}, nil
}

// Next returns the first run time after from.
func (a *Autosaver) Next(from time.Time) time.Time { return a.schedule.Next(from) }

// Start launches the background loop.
func (a *Autosaver) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil {
		return fmt.Errorf("autosave already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(loopCtx, a.done)
	a.logger.Info("autosave started", "schedule", a.spec)
	return nil
}

func (a *Autosaver) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		wait := a.Next(a.now()).Sub(a.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Flush what is pending before exiting.
			a.Tick(context.WithoutCancel(ctx))
			return
		case <-timer.C:
			a.Tick(ctx)
		}
	}
}

// Tick saves every dirty session once and returns how many were saved.
func (a *Autosaver) Tick(ctx context.Context) int {
	saved := 0
	for _, s := range a.sessions.List() {
		if !s.Dirty() || !a.tryAcquire(s.ID()) {
			continue
		}
		ctx := logging.WithSessionID(ctx, s.ID())
		wf, err := s.Save(ctx, a.store, session.SaveOptions{
			Version:     a.cfg.Versioned,
			Description: "autosave",
		})
		a.release(s.ID())
		if err != nil {
			a.logger.ErrorContext(ctx, "autosave failed", slog.String("error", err.Error()))
			continue
		}
		a.logger.DebugContext(ctx, "autosaved", slog.String("workflow_id", wf.ID))
		saved++
	}
	return saved
}

func (a *Autosaver) tryAcquire(id string) bool {
	a.inflightMu.Lock()
	defer a.inflightMu.Unlock()
	if _, ok := a.inflight[id]; ok {
		return false
	}
	a.inflight[id] = struct{}{}
	return true
}

func (a *Autosaver) release(id string) {
	a.inflightMu.Lock()
	defer a.inflightMu.Unlock()
	delete(a.inflight, id)
}

// Stop ends the loop after a final save of dirty sessions.
func (a *Autosaver) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel == nil {
		return nil
	}
	a.cancel()
	<-a.done
	a.cancel = nil
	a.done = nil
	a.logger.Info("autosave stopped")
	return nil
}
