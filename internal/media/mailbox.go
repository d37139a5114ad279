package media

import (
	"sync"
	"time"
)

// EventKind distinguishes unit events.
type EventKind int

const (
	EventIngestProgress EventKind = iota
	EventAssetReady
	EventIngestFailed
	EventJobState
)

func (k EventKind) String() string {
	switch k {
	case EventIngestProgress:
		return "ingest_progress"
	case EventAssetReady:
		return "asset_ready"
	case EventIngestFailed:
		return "ingest_failed"
	case EventJobState:
		return "job_state"
	default:
		return "unknown"
	}
}

// Event is a message from a job unit to its orchestrator.
type Event struct {
	Kind EventKind
	Unit *JobUnit
	At   time.Time

	Percent int
	Asset   Asset
	Status  JobStatus
	Err     error
}

// mailbox is an unbounded queue of unit events. Posting never blocks; the
// orchestrator drains it while holding its lock.
type mailbox struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) post(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	m.mu.Lock()
	m.queue = append(m.queue, ev)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.queue
	m.queue = nil
	return events
}

func (m *mailbox) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
