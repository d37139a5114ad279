// Package mediatest provides an in-memory encoding service for tests.
package mediatest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"thirdcoast.systems/mediaportal/internal/media"
)

var (
	_ media.Gateway     = (*Gateway)(nil)
	_ media.BlobCleaner = (*Gateway)(nil)
)

// Gateway is a thread-safe fake of the remote encoding service and blob
// storage. Copies complete immediately unless ManualCopy is set; jobs stay
// queued until SetJobState or FinishAll is called.
type Gateway struct {
	mu sync.Mutex

	// ManualCopy holds copies until CompleteCopy is called.
	ManualCopy bool
	// OutputFiles returns the files of the output asset of a task. Encode
	// tasks default to a single mp4 and thumbnail tasks to a single jpg.
	OutputFiles func(spec media.TaskSpec) []string
	// ListedFiles is returned by ListLocatorFiles.
	ListedFiles []string
	// BlobSizeBytes is returned by BlobSize, 1024 when zero.
	BlobSizeBytes int64

	nextID    int
	sources   map[string]int64
	failures  map[string]error
	calls     map[string]int
	assets    map[string]media.Asset
	pending   map[string]*pendingCopy
	jobs      map[string]*fakeJob
	jobOrder  []string
	locators  []string
	deleted   []string
	cleanedUp []string
}

type pendingCopy struct {
	size     int64
	progress media.CopyProgress
	result   chan error
}

type fakeJob struct {
	job       media.Job
	tasks     []media.Task
	specs     []media.TaskSpec
	submitted bool
	stopped   bool
	updates   chan media.JobStatus
}

func NewGateway() *Gateway {
	return &Gateway{
		sources:  map[string]int64{},
		failures: map[string]error{},
		calls:    map[string]int{},
		assets:   map[string]media.Asset{},
		pending:  map[string]*pendingCopy{},
		jobs:     map[string]*fakeJob{},
	}
}

// SetSource registers the size of a source object by reference.
func (g *Gateway) SetSource(ref string, size int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sources[ref] = size
}

// Fail makes every later call of op return err. A nil err clears it.
func (g *Gateway) Fail(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// Calls returns how often op has been called.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *Gateway) enter(op string) error {
	g.calls[op]++
	return g.failures[op]
}

func (g *Gateway) id(prefix string) string {
	g.nextID++
	return fmt.Sprintf("%s-%d", prefix, g.nextID)
}

func (g *Gateway) CreateAsset(_ context.Context, name string, _ media.Protection) (media.Asset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateAsset"); err != nil {
		return media.Asset{}, err
	}
	asset := media.Asset{ID: g.id("asset"), Name: name}
	g.assets[asset.ID] = asset
	return asset, nil
}

func (g *Gateway) CreateWriteLocator(_ context.Context, asset media.Asset, policy media.AccessPolicy) (media.Locator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateWriteLocator"); err != nil {
		return media.Locator{}, err
	}
	loc := media.Locator{
		ID:        g.id("locator"),
		Path:      "https://blob.test/" + asset.ID + "?sig=w",
		Container: asset.ID,
		ExpiresAt: policy.Start.Add(policy.Duration),
	}
	g.locators = append(g.locators, loc.ID)
	return loc, nil
}

func (g *Gateway) DeleteLocator(_ context.Context, loc media.Locator) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteLocator"); err != nil {
		return err
	}
	g.deleted = append(g.deleted, loc.ID)
	return nil
}

func (g *Gateway) SourceSize(_ context.Context, src media.SourceFile) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("SourceSize"); err != nil {
		return 0, err
	}
	if size, ok := g.sources[src.Ref]; ok {
		return size, nil
	}
	return src.Size, nil
}

func (g *Gateway) StartCopy(_ context.Context, src media.SourceFile, _ media.Locator, _ string, progress media.CopyProgress) (<-chan error, error) {
	g.mu.Lock()
	if err := g.enter("StartCopy"); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	size, ok := g.sources[src.Ref]
	if !ok {
		size = src.Size
	}
	result := make(chan error, 1)
	if g.ManualCopy {
		g.pending[src.Name] = &pendingCopy{size: size, progress: progress, result: result}
		g.mu.Unlock()
		return result, nil
	}
	g.mu.Unlock()

	if progress != nil {
		progress(size/2, size)
	}
	result <- nil
	return result, nil
}

// CompleteCopy reports progress for a held copy and then finishes it with err.
func (g *Gateway) CompleteCopy(name string, percent int, err error) bool {
	g.mu.Lock()
	c, ok := g.pending[name]
	delete(g.pending, name)
	g.mu.Unlock()
	if !ok {
		return false
	}
	if c.progress != nil && percent > 0 {
		c.progress(c.size*int64(percent)/100, c.size)
	}
	c.result <- err
	return true
}

// PendingCopies returns the number of held copies.
func (g *Gateway) PendingCopies() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *Gateway) RegisterFile(_ context.Context, asset media.Asset, fileName string, _ int64) (media.Asset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("RegisterFile"); err != nil {
		return media.Asset{}, err
	}
	asset.Files = []string{fileName}
	g.assets[asset.ID] = asset
	return asset, nil
}

func (g *Gateway) CreateJob(_ context.Context, name string) (media.Job, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateJob"); err != nil {
		return media.Job{}, err
	}
	job := media.Job{ID: g.id("job"), Name: name}
	g.jobs[job.ID] = &fakeJob{job: job}
	g.jobOrder = append(g.jobOrder, job.ID)
	return job, nil
}

func (g *Gateway) AddTask(_ context.Context, job media.Job, spec media.TaskSpec) (media.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("AddTask"); err != nil {
		return media.Task{}, err
	}
	j, ok := g.jobs[job.ID]
	if !ok {
		return media.Task{}, fmt.Errorf("unknown job %s", job.ID)
	}
	task := media.Task{ID: g.id("task"), Name: spec.Name, OutputName: spec.OutputName}
	j.tasks = append(j.tasks, task)
	j.specs = append(j.specs, spec)
	return task, nil
}

func (g *Gateway) Submit(_ context.Context, job media.Job) (media.Job, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("Submit"); err != nil {
		return media.Job{}, err
	}
	j, ok := g.jobs[job.ID]
	if !ok {
		return media.Job{}, fmt.Errorf("unknown job %s", job.ID)
	}
	j.submitted = true
	j.updates = make(chan media.JobStatus, 32)
	return j.job, nil
}

func (g *Gateway) WatchJob(_ context.Context, job media.Job) (<-chan media.JobStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("WatchJob"); err != nil {
		return nil, err
	}
	j, ok := g.jobs[job.ID]
	if !ok || !j.submitted {
		return nil, fmt.Errorf("job %s was not submitted", job.ID)
	}
	return j.updates, nil
}

// SetJobState publishes a state change of a submitted job.
func (g *Gateway) SetJobState(jobID string, state media.JobState, errs ...media.TaskError) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setJobStateLocked(g.jobs[jobID], state, errs)
}

// SetAllJobs publishes state to every submitted job that has not stopped.
func (g *Gateway) SetAllJobs(state media.JobState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range g.jobOrder {
		g.setJobStateLocked(g.jobs[id], state, nil)
	}
}

// FinishAll finishes every running job.
func (g *Gateway) FinishAll() {
	g.SetAllJobs(media.JobFinished)
}

// CloseJobStream ends a job's state stream without a final state.
func (g *Gateway) CloseJobStream(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if j, ok := g.jobs[jobID]; ok && j.submitted && !j.stopped {
		j.stopped = true
		close(j.updates)
	}
}

func (g *Gateway) setJobStateLocked(j *fakeJob, state media.JobState, errs []media.TaskError) {
	if j == nil || !j.submitted || j.stopped {
		return
	}
	j.updates <- media.JobStatus{State: state, Errors: errs}
	if state.Stopped() {
		j.stopped = true
		close(j.updates)
	}
}

// Jobs returns every created job in creation order.
func (g *Gateway) Jobs() []media.Job {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]media.Job, 0, len(g.jobOrder))
	for _, id := range g.jobOrder {
		out = append(out, g.jobs[id].job)
	}
	return out
}

// Tasks returns the task specs added to a job.
func (g *Gateway) Tasks(jobID string) []media.TaskSpec {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[jobID]
	if !ok {
		return nil
	}
	return append([]media.TaskSpec(nil), j.specs...)
}

func (g *Gateway) JobOutputs(_ context.Context, job media.Job) ([]media.OutputAsset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("JobOutputs"); err != nil {
		return nil, err
	}
	j, ok := g.jobs[job.ID]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", job.ID)
	}

	outputs := make([]media.OutputAsset, 0, len(j.tasks))
	for i, task := range j.tasks {
		outputs = append(outputs, media.OutputAsset{
			ID:     "out-" + task.ID,
			Name:   task.OutputName,
			TaskID: task.ID,
			Files:  g.outputFiles(j.specs[i]),
		})
	}
	return outputs, nil
}

func (g *Gateway) outputFiles(spec media.TaskSpec) []string {
	if g.OutputFiles != nil {
		return g.OutputFiles(spec)
	}
	if spec.Configuration == media.ThumbnailConfiguration {
		return []string{"thumb.jpg"}
	}
	return []string{"clip.mp4"}
}

func (g *Gateway) CreateReadLocator(_ context.Context, asset media.OutputAsset, kind media.LocatorKind, policy media.AccessPolicy) (media.Locator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateReadLocator"); err != nil {
		return media.Locator{}, err
	}
	path := "https://blob.test/" + asset.ID + "?sv=read"
	if kind == media.LocatorOnDemandOrigin {
		path = "https://origin.test/" + asset.ID
	}
	return media.Locator{
		ID:        g.id("locator"),
		Path:      path,
		Container: asset.ID,
		ExpiresAt: policy.Start.Add(policy.Duration),
	}, nil
}

func (g *Gateway) ListLocatorFiles(_ context.Context, _ media.Locator) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListLocatorFiles"); err != nil {
		return nil, err
	}
	return append([]string(nil), g.ListedFiles...), nil
}

func (g *Gateway) BlobSize(_ context.Context, url string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("BlobSize"); err != nil {
		return 0, err
	}
	if !strings.HasPrefix(url, "https://") {
		return 0, fmt.Errorf("not a blob url: %s", url)
	}
	if g.BlobSizeBytes == 0 {
		return 1024, nil
	}
	return g.BlobSizeBytes, nil
}

func (g *Gateway) DeleteContainer(_ context.Context, container string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteContainer"); err != nil {
		return err
	}
	g.cleanedUp = append(g.cleanedUp, container)
	return nil
}

// DeletedContainers returns the containers removed through DeleteContainer.
func (g *Gateway) DeletedContainers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cleanedUp...)
}

// DeletedLocators returns the ids of locators removed through DeleteLocator.
func (g *Gateway) DeletedLocators() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deleted...)
}
