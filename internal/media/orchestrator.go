package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Poll intervals suggested to the driver.
const (
	DefaultRefreshInterval  = 60 * time.Second
	ProgressRefreshInterval = 10 * time.Second
	TasksDelay              = 100 * time.Millisecond
)

const (
	DefaultExpiration      = 24 * time.Hour
	DefaultCopyTimeout     = 8 * time.Hour
	DefaultInProgressLimit = 10
)

// Status messages shown to the user.
const (
	MessageEncodingStarted = "Encoding of media assets has started successfully..."
	MessageUploading       = "Uploading media assets..."
	MessageJobsStarted     = "Encoding jobs have been started..."
	MessageJobsInProcess   = "Encoding jobs are in process..."
	MessageJobsFinished    = "Encoding jobs have finished successfully."
	MessageEncodingFailed  = "Failed to encode media assets."
	MessageSessionExpired  = "Your session has expired. Please reload the page."
)

// Status is the result of one Advance call.
type Status struct {
	Message      string
	PollInterval time.Duration
	// Refresh tells the UI to reload the record list.
	Refresh bool
	State   State
}

// Options configures an Orchestrator.
type Options struct {
	Store   AssetRecordStore
	Gateway Gateway
	// Cleaner deletes temporary ingest containers. Optional.
	Cleaner BlobCleaner
	// Presets validates and resolves encoder presets. Optional; without it
	// preset ids are passed to the service unchanged.
	Presets PresetResolver
	// CopyTimeout bounds the lifetime of write locators.
	CopyTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// BatchOptions are the user's choices for one batch.
type BatchOptions struct {
	Files       []SourceFile
	Encoders    []string
	ProcessorID string
	Protection  Protection
	Expiration  time.Duration
}

// Orchestrator drives the batch of one user session through ingest, encoding
// and publication. All methods are safe for concurrent use.
type Orchestrator struct {
	mu sync.Mutex

	store       AssetRecordStore
	gw          Gateway
	cleaner     BlobCleaner
	presets     PresetResolver
	copyTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time

	events      *mailbox
	baseCtx     context.Context
	cancel      context.CancelFunc
	batchCtx    context.Context
	batchCancel context.CancelFunc
	generation  uint64
	disposed    bool

	state State
	// configured is set by Configure and cleared by reset. A Ready batch
	// without it only collects files.
	configured     bool
	files          []SourceFile
	encoders       []string
	processorID    string
	protection     Protection
	expiration     time.Duration
	assignments    []Assignment
	units          []*JobUnit
	startedAt      time.Time
	dirty          bool
	tempContainers []string
	lastMessage    string
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("media: record store is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("media: gateway is required")
	}
	if opts.CopyTimeout <= 0 {
		opts.CopyTimeout = DefaultCopyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	base, cancel := context.WithCancel(context.Background())
	batchCtx, batchCancel := context.WithCancel(base)

	return &Orchestrator{
		store:       opts.Store,
		gw:          opts.Gateway,
		cleaner:     opts.Cleaner,
		presets:     opts.Presets,
		copyTimeout: opts.CopyTimeout,
		log:         opts.Logger,
		now:         opts.Now,
		events:      newMailbox(),
		baseCtx:     base,
		cancel:      cancel,
		batchCtx:    batchCtx,
		batchCancel: batchCancel,
		state:       StateInitialized,
		expiration:  DefaultExpiration,
	}, nil
}

// Configure validates and stores the batch options. Files are merged with
// those added through AddInputFile. It is only allowed before a batch has
// started; on error the orchestrator is unchanged.
func (o *Orchestrator) Configure(_ context.Context, opts BatchOptions) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed || (o.state != StateInitialized && o.state != StateReady) {
		return ErrInvalidState
	}

	if opts.ProcessorID == "" {
		return &ConfigurationError{Field: "processor", Reason: "a media processor is required"}
	}
	for _, enc := range opts.Encoders {
		if enc == "" {
			return &ConfigurationError{Field: "preset", Reason: "empty encoding preset"}
		}
		if o.presets != nil && !o.presets.HasPreset(enc) {
			return &ConfigurationError{Field: "preset", Reason: fmt.Sprintf("unknown encoding preset %q", enc)}
		}
	}

	files := append([]SourceFile(nil), o.files...)
	for _, f := range opts.Files {
		files = appendFile(files, f)
	}
	if len(files) == 0 {
		return &ConfigurationError{Field: "files", Reason: "no input files were uploaded"}
	}

	encoders := append([]string(nil), opts.Encoders...)
	if len(encoders) == 0 {
		encoders = []string{opts.ProcessorID}
	}
	expiration := opts.Expiration
	if expiration <= 0 {
		expiration = DefaultExpiration
	}

	o.files = files
	o.encoders = encoders
	o.processorID = opts.ProcessorID
	o.protection = opts.Protection
	o.expiration = expiration
	o.lastMessage = ""
	o.state = StateReady
	o.configured = true

	o.log.Info("media batch configured",
		"files", len(files),
		"encoders", encoders,
		"processor", opts.ProcessorID,
		"protection", opts.Protection,
		"expiration", expiration,
	)
	return nil
}

// AddInputFile registers an uploaded source file with the next batch. Files
// are unique by name; a second upload of the same name replaces the first.
func (o *Orchestrator) AddInputFile(f SourceFile) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed || (o.state != StateInitialized && o.state != StateReady) {
		return ErrInvalidState
	}
	o.files = appendFile(o.files, f)
	return nil
}

func appendFile(files []SourceFile, f SourceFile) []SourceFile {
	for i := range files {
		if files[i].Name == f.Name {
			files[i] = f
			return files
		}
	}
	return append(files, f)
}

// InputFiles returns the files of the current batch.
func (o *Orchestrator) InputFiles() []SourceFile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]SourceFile(nil), o.files...)
}

func (o *Orchestrator) CurrentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// AssetsInProgress returns the records that have not finished yet.
func (o *Orchestrator) AssetsInProgress(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultInProgressLimit
	}
	return o.store.ListInProgress(ctx, limit)
}

// Changes is signalled whenever a unit posts an event.
func (o *Orchestrator) Changes() <-chan struct{} {
	return o.events.notify
}

// Sync applies pending unit events without advancing the batch.
func (o *Orchestrator) Sync(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.applyPending(ctx)
}

// Dispose stops the local goroutines of the batch. Remote jobs keep running.
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed {
		return
	}
	o.disposed = true
	o.generation++
	o.cancel()
	o.units = nil
	o.events.drain()
	o.log.Info("media batch disposed", "state", o.state)
}

// Advance applies pending unit events, performs the work due in the current
// state and reports what the UI should show and when to call again. Failures
// move the batch to Canceled and are reported through the status message.
func (o *Orchestrator) Advance(ctx context.Context) (st Status) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed {
		return Status{Message: MessageSessionExpired, PollInterval: DefaultRefreshInterval, State: o.state}
	}

	defer func() {
		if r := recover(); r != nil {
			o.fail(fmt.Errorf("unexpected failure in state %s: %v", o.state, r))
			st = Status{Message: o.lastMessage, PollInterval: DefaultRefreshInterval, Refresh: true, State: o.state}
		}
	}()

	o.applyPending(ctx)
	st = o.step(ctx)
	st.State = o.state
	return st
}

func (o *Orchestrator) step(ctx context.Context) Status {
	switch o.state {
	case StateReady:
		if !o.configured || len(o.files) == 0 {
			break
		}
		if err := o.createEntries(ctx); err != nil {
			o.fail(err)
			return Status{Message: o.lastMessage, PollInterval: DefaultRefreshInterval, Refresh: true}
		}
		o.state = StateCreated
		return Status{Message: MessageEncodingStarted, PollInterval: TasksDelay, Refresh: true}

	case StateCreated:
		if err := o.ingestAll(); err != nil {
			o.fail(err)
			return Status{Message: o.lastMessage, PollInterval: DefaultRefreshInterval, Refresh: true}
		}
		o.state = StateIngesting
		return Status{PollInterval: ProgressRefreshInterval, Refresh: true}

	case StateIngesting:
		return Status{Message: MessageUploading, PollInterval: ProgressRefreshInterval}

	case StateIngested:
		if err := o.submitAll(ctx); err != nil {
			o.fail(err)
			return Status{Message: o.lastMessage, PollInterval: DefaultRefreshInterval, Refresh: true}
		}
		o.state = StateStarted
		o.dirty = true
		return Status{PollInterval: ProgressRefreshInterval, Refresh: true}

	case StateStarted:
		st := Status{Message: MessageJobsStarted, PollInterval: ProgressRefreshInterval, Refresh: o.dirty}
		o.dirty = false
		return st

	case StateQueued, StateProcessing:
		st := Status{Message: MessageJobsInProcess, PollInterval: ProgressRefreshInterval, Refresh: o.dirty}
		o.dirty = false
		return st

	case StateProcessed:
		msg := MessageJobsFinished
		if err := o.publishAll(ctx); err != nil {
			msg = o.lastMessage
		}
		o.batchCancel()
		o.cleanTemporary(ctx)
		o.reset()
		return Status{Message: msg, PollInterval: DefaultRefreshInterval, Refresh: true}

	case StateCanceled:
		msg := o.lastMessage
		if msg == "" {
			msg = MessageEncodingFailed
		}
		o.batchCancel()
		o.cleanTemporary(ctx)
		o.reset()
		return Status{Message: msg, PollInterval: DefaultRefreshInterval, Refresh: true}
	}

	return Status{PollInterval: DefaultRefreshInterval}
}

// createEntries creates one unit per file and one record per file and
// encoder. Every assignment exists before any unit submits a job.
func (o *Orchestrator) createEntries(ctx context.Context) error {
	if len(o.encoders) == 0 {
		o.encoders = []string{o.processorID}
	}
	now := o.now()
	units := make([]*JobUnit, 0, len(o.files))
	assignments := make([]Assignment, 0, len(o.files)*len(o.encoders))

	for i, f := range o.files {
		u := newJobUnit(i, o.generation, f, o.gw, o.events, o.log)
		for _, enc := range o.encoders {
			rec := &Record{
				Collection:   f.Title(),
				Row:          NewRowKey(now),
				OriginalFile: f.Name,
				Encoding:     enc,
				Protection:   o.protection.Description(),
				Renderer:     o.processorID,
				CreatedAt:    now,
				ExpiresAt:    now.Add(o.expiration),
				Status:       StatusCreated,
			}
			if err := o.store.Create(ctx, rec); err != nil {
				return fmt.Errorf("create media record for %s: %w", f.Name, err)
			}
			u.keys = append(u.keys, rec.Key())
			assignments = append(assignments, Assignment{Key: rec.Key(), Encoder: enc, File: f.Name})
		}
		units = append(units, u)
	}

	o.units = units
	o.assignments = assignments
	o.log.Info("media records created", "files", len(units), "records", len(assignments))
	return nil
}

// ingestAll starts the ingest of every unit concurrently. Units keep the
// batch context so their copy watchers outlive the call.
func (o *Orchestrator) ingestAll() error {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for _, u := range o.units {
		g.Go(func() error {
			container, err := u.Ingest(o.batchCtx, o.protection, o.copyTimeout)
			mu.Lock()
			if container != "" {
				o.tempContainers = append(o.tempContainers, container)
			}
			mu.Unlock()
			if err != nil {
				u.state = StateCanceled
				return err
			}
			u.state = StateIngesting
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) submitAll(ctx context.Context) error {
	o.startedAt = o.now()
	for _, u := range o.units {
		for _, key := range u.keys {
			o.updateStatus(ctx, key, UploadedStatus(100))
		}
	}

	var g errgroup.Group
	for _, u := range o.units {
		g.Go(func() error {
			if err := u.SubmitEncodeJob(o.batchCtx, o.processorID, o.assignments, o.protection, o.presets); err != nil {
				u.state = StateCanceled
				return err
			}
			u.state = StateQueued
			return nil
		})
	}
	err := g.Wait()

	for _, u := range o.units {
		if u.state != StateQueued {
			continue
		}
		for _, key := range u.keys {
			o.updateStatus(ctx, key, JobQueued.String())
		}
	}
	return err
}

func (o *Orchestrator) publishAll(ctx context.Context) error {
	seen := make(map[RecordKey]bool)
	var firstErr error
	for _, u := range o.units {
		if u.state != StateProcessed || !u.Completed() {
			continue
		}
		outputs, err := u.Publish(ctx, o.expiration)
		if err != nil {
			o.logFailure(err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		o.reconcile(ctx, u, outputs, seen)
	}
	return firstErr
}

func (o *Orchestrator) applyPending(ctx context.Context) {
	for _, ev := range o.events.drain() {
		o.apply(ctx, ev)
	}
}

func (o *Orchestrator) apply(ctx context.Context, ev Event) {
	u := ev.Unit
	if u == nil || u.generation != o.generation {
		o.log.Debug("dropping event of a previous batch", "kind", ev.Kind)
		return
	}

	switch ev.Kind {
	case EventIngestProgress:
		if u.state != StateIngesting {
			return
		}
		for _, key := range u.keys {
			o.updateStatus(ctx, key, UploadedStatus(ev.Percent))
		}

	case EventAssetReady:
		if u.state != StateIngesting {
			return
		}
		u.asset = ev.Asset
		u.state = StateIngested

	case EventIngestFailed:
		u.state = StateCanceled
		o.logFailure(ev.Err)
		for _, key := range u.keys {
			o.updateStatus(ctx, key, JobCanceled.String())
		}

	case EventJobState:
		next, ok := ev.Status.State.UnitState()
		if !ok {
			o.log.Warn("unknown job state", "job_id", u.job.ID, "state", ev.Status.State)
			return
		}
		u.jobState = ev.Status.State
		u.state = next
		for _, key := range u.keys {
			o.updateStatus(ctx, key, ev.Status.State.String())
		}
	}

	o.aggregate()
}

// aggregate moves the batch once every unit agrees on a state. During
// encoding, a batch whose units all stopped with at least one success is
// Processed.
func (o *Orchestrator) aggregate() {
	if len(o.units) == 0 {
		return
	}

	switch o.state {
	case StateIngesting:
		ingested := 0
		for _, u := range o.units {
			if u.state == StateCanceled {
				o.setState(StateCanceled)
				return
			}
			if u.state == StateIngested {
				ingested++
			}
		}
		if ingested == len(o.units) {
			o.setState(StateIngested)
		}

	case StateStarted, StateQueued, StateProcessing:
		first := o.units[0].state
		uniform, terminal, processed := true, true, false
		for _, u := range o.units {
			if u.state != first {
				uniform = false
			}
			if !u.state.Terminal() {
				terminal = false
			}
			if u.state == StateProcessed {
				processed = true
			}
		}

		switch {
		case uniform && (first == StateQueued || first == StateProcessing || first.Terminal()):
			o.setState(first)
		case terminal && processed:
			o.setState(StateProcessed)
		}
	}
}

func (o *Orchestrator) setState(s State) {
	if o.state == s {
		return
	}
	o.log.Info("media batch state changed", "from", o.state, "to", s)
	o.state = s
	o.dirty = true
}

// updateStatus writes a record's status. Writing the status it already has
// is a no-op.
func (o *Orchestrator) updateStatus(ctx context.Context, key RecordKey, status string) {
	rec, err := o.store.Get(ctx, key.Collection, key.Row)
	if errors.Is(err, ErrRecordNotFound) {
		o.log.Warn("skipping status update", "error", &ConsistencyWarning{Key: key}, "status", status)
		return
	}
	if err != nil {
		o.log.Error("failed to load media record", "key", key.String(), "error", err)
		return
	}
	if rec.Status == status {
		return
	}

	rec.Status = status
	if !o.startedAt.IsZero() {
		rec.ProcessingTime = o.now().Sub(o.startedAt)
	}
	if err := o.store.Update(ctx, rec); err != nil {
		o.log.Error("failed to update media record", "key", key.String(), "status", status, "error", err)
		return
	}
	o.dirty = true
}

func (o *Orchestrator) fail(err error) {
	o.logFailure(err)
	o.setState(StateCanceled)
}

func (o *Orchestrator) logFailure(err error) {
	if err == nil {
		return
	}
	o.log.Error("media batch failed", "state", o.state, "error", err)
	o.lastMessage = err.Error()
}

func (o *Orchestrator) cleanTemporary(ctx context.Context) {
	if o.cleaner != nil {
		for _, c := range o.tempContainers {
			if err := o.cleaner.DeleteContainer(ctx, c); err != nil {
				o.log.Warn("failed to delete temporary container", "container", c, "error", err)
			}
		}
	}
	o.tempContainers = nil
}

// reset abandons the current batch and returns to an empty Ready state.
// Events still in flight for the old batch are ignored.
func (o *Orchestrator) reset() {
	o.batchCancel()
	o.batchCtx, o.batchCancel = context.WithCancel(o.baseCtx)
	o.generation++

	o.state = StateReady
	o.configured = false
	o.files = nil
	o.encoders = nil
	o.assignments = nil
	o.units = nil
	o.startedAt = time.Time{}
	o.lastMessage = ""
}
