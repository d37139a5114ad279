package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// locatorClockSkew backdates locator start times to tolerate clock
// differences between this host and the service.
const locatorClockSkew = 5 * time.Minute

// progressInterval throttles "NN% Uploaded" record updates per unit.
const progressInterval = time.Second

// Assignment binds a record key to the encoder preset used for it.
type Assignment struct {
	Key     RecordKey
	Encoder string
	// File is the source file name the record was created for.
	File string
}

// MatchesAsset applies the key prefix rule: an assignment belongs to an
// asset when the asset name starts with the collection part of the key.
func (a Assignment) MatchesAsset(assetName string) bool {
	return strings.HasPrefix(assetName, a.Key.Collection)
}

// JobUnit drives one source file through ingest and encoding. Its state is
// owned by the orchestrator; the unit itself only posts events.
type JobUnit struct {
	index      int
	generation uint64
	file       SourceFile
	gw         Gateway
	events     *mailbox
	log        *slog.Logger

	keys  []RecordKey
	state State
	asset Asset
	job   Job

	// published maps the id of the last task of each encode chain to the
	// record it fills.
	published     map[string]RecordKey
	thumbnailTask string
	jobState      JobState

	done     chan struct{}
	progress rate.Sometimes
}

func newJobUnit(index int, generation uint64, file SourceFile, gw Gateway, events *mailbox, log *slog.Logger) *JobUnit {
	return &JobUnit{
		index:      index,
		generation: generation,
		file:       file,
		gw:         gw,
		events:     events,
		log:        log.With("file", file.Name),
		state:      StateCreated,
		published:  map[string]RecordKey{},
		done:       make(chan struct{}),
		progress:   rate.Sometimes{Interval: progressInterval},
	}
}

func (u *JobUnit) File() SourceFile { return u.file }
func (u *JobUnit) State() State     { return u.state }
func (u *JobUnit) Asset() Asset     { return u.asset }
func (u *JobUnit) Job() Job         { return u.job }
func (u *JobUnit) Keys() []RecordKey {
	return append([]RecordKey(nil), u.keys...)
}

// Done is closed once the remote job has stopped.
func (u *JobUnit) Done() <-chan struct{} { return u.done }

// Completed reports whether the remote job has stopped.
func (u *JobUnit) Completed() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

// Ingest creates the remote asset and starts copying the source into it.
// It returns the temporary container to clean up once the batch is done;
// the container is returned even when a later step fails. Completion is
// reported through EventAssetReady or EventIngestFailed.
func (u *JobUnit) Ingest(ctx context.Context, protection Protection, copyTimeout time.Duration) (string, error) {
	name := u.file.FileName() + "_" + uuid.NewString()
	asset, err := u.gw.CreateAsset(ctx, name, protection)
	if err != nil {
		return "", gatewayError("create asset", err)
	}
	u.asset = asset

	loc, err := u.gw.CreateWriteLocator(ctx, asset, AccessPolicy{
		Start:    time.Now().Add(-locatorClockSkew),
		Duration: copyTimeout,
	})
	if err != nil {
		return "", gatewayError("create write locator", err)
	}

	size, err := u.gw.SourceSize(ctx, u.file)
	if err != nil {
		return loc.Container, gatewayError("read source size", err)
	}
	if size == 0 {
		u.log.Warn("source file is empty", "ref", u.file.Ref)
		return loc.Container, &InvalidInputError{File: u.file.Name, Reason: MessageEmptySource}
	}

	result, err := u.gw.StartCopy(ctx, u.file, loc, u.file.FileName(), u.reportProgress)
	if err != nil {
		return loc.Container, gatewayError("start copy", err)
	}

	u.log.Info("ingest started", "asset", asset.Name, "container", loc.Container, "size", size)
	go u.awaitCopy(ctx, asset, loc, size, result)

	return loc.Container, nil
}

func (u *JobUnit) reportProgress(copied, total int64) {
	if total <= 0 || copied >= total {
		return
	}
	u.progress.Do(func() {
		u.events.post(Event{Kind: EventIngestProgress, Unit: u, Percent: int(copied * 100 / total)})
	})
}

func (u *JobUnit) awaitCopy(ctx context.Context, asset Asset, loc Locator, size int64, result <-chan error) {
	select {
	case <-ctx.Done():
		return
	case err := <-result:
		if err != nil {
			u.events.post(Event{Kind: EventIngestFailed, Unit: u, Err: gatewayError("copy source", err)})
			return
		}
	}

	registered, err := u.gw.RegisterFile(ctx, asset, u.file.FileName(), size)
	if err != nil {
		u.events.post(Event{Kind: EventIngestFailed, Unit: u, Err: gatewayError("register file", err)})
		return
	}

	if err := u.gw.DeleteLocator(ctx, loc); err != nil {
		u.log.Warn("failed to delete write locator", "locator", loc.ID, "error", err)
	}

	u.log.Info("asset ingested", "asset", registered.Name)
	u.events.post(Event{Kind: EventAssetReady, Unit: u, Asset: registered})
}

// SubmitEncodeJob composes and submits the unit's encoding job: one encode
// task per assignment matching the asset, protection tasks chained per the
// protection mode and a thumbnail task. State changes of the submitted job
// are posted as EventJobState.
func (u *JobUnit) SubmitEncodeJob(ctx context.Context, processorID string, assignments []Assignment, protection Protection, presets PresetResolver) error {
	job, err := u.gw.CreateJob(ctx, u.asset.Name)
	if err != nil {
		return gatewayError("create job", err)
	}

	published := map[string]RecordKey{}
	var first *Task
	for _, a := range assignments {
		if a.File != u.file.Name || !a.MatchesAsset(u.asset.Name) {
			continue
		}

		config, err := presetConfiguration(presets, a.Encoder)
		if err != nil {
			return err
		}

		taskName := a.Key.String()
		encode, err := u.gw.AddTask(ctx, job, TaskSpec{
			Name:             taskName,
			ProcessorID:      processorID,
			Configuration:    config,
			InputAsset:       u.asset,
			OutputName:       taskName + "_OutputAsset",
			OutputProtection: protection,
		})
		if err != nil {
			return gatewayError("add encode task", err)
		}
		if first == nil {
			first = &encode
		}

		last, err := u.addProtectionTask(ctx, job, encode, protection, presets)
		if err != nil {
			return err
		}
		published[last.ID] = a.Key
	}

	if first == nil {
		return gatewayError("create job", errors.New("No tasks were created"))
	}

	thumbName := first.Name + keyDelimiter + ThumbnailConfiguration
	thumb, err := u.gw.AddTask(ctx, job, TaskSpec{
		Name:             thumbName,
		ProcessorID:      ProcessorEncoder,
		Configuration:    ThumbnailConfiguration,
		InputAsset:       u.asset,
		OutputName:       thumbName,
		OutputProtection: ProtectionNone,
	})
	if err != nil {
		return gatewayError("add thumbnail task", err)
	}

	submitted, err := u.gw.Submit(ctx, job)
	if err != nil {
		return gatewayError("submit job", err)
	}

	updates, err := u.gw.WatchJob(ctx, submitted)
	if err != nil {
		return gatewayError("watch job", err)
	}

	u.job = submitted
	u.published = published
	u.thumbnailTask = thumb.ID
	u.jobState = JobQueued

	u.log.Info("encoding job submitted", "job_id", submitted.ID, "tasks", len(published)+1)
	go u.watch(ctx, updates)

	return nil
}

// addProtectionTask chains the task required by the protection mode after
// encode and returns the last task of the chain.
func (u *JobUnit) addProtectionTask(ctx context.Context, job Job, encode Task, protection Protection, presets PresetResolver) (Task, error) {
	spec := TaskSpec{
		Name:             encode.Name,
		InputTaskID:      encode.ID,
		OutputProtection: ProtectionNone,
	}

	switch protection {
	case ProtectionEnvelopeEncryption:
		config, err := protectionConfiguration(presets, protection)
		if err != nil {
			return Task{}, err
		}
		spec.ProcessorID = ProcessorEncryptor
		spec.Configuration = config
		spec.OutputName = encode.Name + "_Protected"
	case ProtectionStorageEncrypted:
		spec.ProcessorID = ProcessorDecryptor
		spec.OutputName = encode.Name + "_Decrypted"
	default:
		// Common encryption is applied by the encode task itself.
		return encode, nil
	}

	task, err := u.gw.AddTask(ctx, job, spec)
	if err != nil {
		return Task{}, gatewayError(fmt.Sprintf("add %s task", spec.ProcessorID), err)
	}
	return task, nil
}

func (u *JobUnit) watch(ctx context.Context, updates <-chan JobStatus) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				st = JobStatus{State: JobError, Errors: []TaskError{{Message: "job state stream ended unexpectedly"}}}
				u.logJobStop(st)
				close(u.done)
				u.events.post(Event{Kind: EventJobState, Unit: u, Status: st})
				return
			}

			u.log.Debug("job state changed", "job_id", u.job.ID, "state", st.State)
			if st.State == JobCanceled || st.State == JobError {
				u.logJobStop(st)
			}
			if st.State.Stopped() {
				// Close before posting so the orchestrator never sees a
				// stopped state on a unit that is not yet completed.
				close(u.done)
				u.events.post(Event{Kind: EventJobState, Unit: u, Status: st})
				return
			}
			u.events.post(Event{Kind: EventJobState, Unit: u, Status: st})
		}
	}
}

func (u *JobUnit) logJobStop(st JobStatus) {
	u.log.Warn("encoding job stopped due to cancellation or an error",
		"job_id", u.job.ID,
		"job_name", u.job.Name,
		"state", st.State,
		"started_at", st.StartedAt,
	)
	if st.State != JobError {
		return
	}
	for _, te := range st.Errors {
		u.log.Warn("encoding task error",
			"job_id", u.job.ID,
			"task_id", te.TaskID,
			"code", te.Code,
			"message", te.Message,
		)
	}
}

func presetConfiguration(presets PresetResolver, id string) (string, error) {
	if presets == nil {
		return id, nil
	}
	config, err := presets.PresetConfiguration(id)
	if err != nil {
		return "", &ConfigurationError{Field: "preset", Reason: err.Error()}
	}
	return config, nil
}

func protectionConfiguration(presets PresetResolver, p Protection) (string, error) {
	if presets == nil {
		return "", &ConfigurationError{Field: "protection", Reason: "no configuration available for " + p.Description()}
	}
	config, err := presets.ProtectionConfiguration(p)
	if err != nil {
		return "", &ConfigurationError{Field: "protection", Reason: err.Error()}
	}
	return config, nil
}
