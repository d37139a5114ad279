// Package batches keeps the encoding batch of every browser session.
package batches

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"thirdcoast.systems/mediaportal/internal/media"
)

const (
	DefaultIdleTimeout = 2 * time.Hour

	// Hard cap so a flood of new sessions cannot exhaust the process.
	maxBatches = 500
)

var ErrTooManyBatches = errors.New("too many active encoding sessions")

var _ Batch = (*media.Orchestrator)(nil)

// Batch is the orchestrator surface the handlers use.
type Batch interface {
	Configure(ctx context.Context, opts media.BatchOptions) error
	AddInputFile(f media.SourceFile) error
	InputFiles() []media.SourceFile
	CurrentState() media.State
	AssetsInProgress(ctx context.Context, limit int) ([]*media.Record, error)
	Changes() <-chan struct{}
	Sync(ctx context.Context)
	Advance(ctx context.Context) media.Status
	Dispose()
}

// Factory creates the batch for a new session.
type Factory func(logger *slog.Logger) (Batch, error)

type entry struct {
	batch    Batch
	lastUsed time.Time
}

// Registry maps session batch ids to their batches. Batches idle for longer
// than the idle timeout are disposed by Run.
type Registry struct {
	mu      sync.Mutex
	batches map[string]*entry
	factory Factory
	idle    time.Duration
	now     func() time.Time
}

func NewRegistry(factory Factory, idle time.Duration) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Registry{
		batches: make(map[string]*entry),
		factory: factory,
		idle:    idle,
		now:     time.Now,
	}
}

// Get returns the batch of a session and marks it as used.
func (r *Registry) Get(id string) (Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.batches[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.batch, true
}

// GetOrCreate returns the batch of a session, creating it on first use.
func (r *Registry) GetOrCreate(id string) (Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.batches[id]; ok {
		e.lastUsed = r.now()
		return e.batch, nil
	}
	if len(r.batches) >= maxBatches {
		return nil, ErrTooManyBatches
	}

	b, err := r.factory(slog.Default().With("batch_id", id))
	if err != nil {
		return nil, err
	}
	r.batches[id] = &entry{batch: b, lastUsed: r.now()}
	slog.Info("batch created", "batch_id", id, "active", len(r.batches))
	return b, nil
}

// Remove disposes the batch of a session. It reports whether one existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.batches[id]
	delete(r.batches, id)
	r.mu.Unlock()

	if ok {
		e.batch.Dispose()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

// EvictIdle disposes batches unused for longer than the idle timeout.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var stale []Batch
	for id, e := range r.batches {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, e.batch)
			delete(r.batches, id)
			slog.Info("batch evicted", "batch_id", id, "idle_since", e.lastUsed)
		}
	}
	r.mu.Unlock()

	for _, b := range stale {
		b.Dispose()
	}
	return len(stale)
}

// Run evicts idle batches every interval until ctx is done, then disposes
// every remaining batch.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	all := r.batches
	r.batches = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range all {
		e.batch.Dispose()
	}
}
