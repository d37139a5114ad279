// Package gateway joins the media services REST client and the blob store
// into the remote gateway used by the media orchestrator.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/pkg/mediaservices"
)

const DefaultPollInterval = 5 * time.Second

var (
	_ media.Gateway     = (*Gateway)(nil)
	_ media.BlobCleaner = (*Gateway)(nil)
)

// API is the part of the media services client the gateway uses.
type API interface {
	CreateAsset(ctx context.Context, req mediaservices.CreateAssetRequest) (mediaservices.Asset, error)
	AddFile(ctx context.Context, assetID string, req mediaservices.FileRequest) (mediaservices.Asset, error)
	CreateLocator(ctx context.Context, assetID string, req mediaservices.CreateLocatorRequest) (mediaservices.Locator, error)
	DeleteLocator(ctx context.Context, id string) error
	SubmitJob(ctx context.Context, req mediaservices.JobRequest) (mediaservices.Job, error)
	WatchJob(ctx context.Context, id string, interval time.Duration) <-chan mediaservices.JobUpdate
	JobOutputs(ctx context.Context, id string) ([]mediaservices.OutputAsset, error)
}

// Blobs is the part of the blob store the gateway uses.
type Blobs interface {
	Bucket() string
	Size(ctx context.Context, key string) (int64, error)
	Copy(ctx context.Context, src, dst string, progress func(copied, total int64)) error
	List(ctx context.Context, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

type Options struct {
	API   API
	Blobs Blobs
	// UploadPrefix locates sources that carry no storage reference.
	UploadPrefix string
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Gateway implements media.Gateway. Jobs are drafted locally and sent to the
// service in one request on Submit.
type Gateway struct {
	api          API
	blobs        Blobs
	uploadPrefix string
	pollInterval time.Duration
	log          *slog.Logger

	mu     sync.Mutex
	drafts map[string]*draft
}

type draft struct {
	name  string
	tasks []mediaservices.Task
}

func New(opts Options) (*Gateway, error) {
	if opts.API == nil || opts.Blobs == nil {
		return nil, errors.New("gateway: api and blob store are required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gateway{
		api:          opts.API,
		blobs:        opts.Blobs,
		uploadPrefix: opts.UploadPrefix,
		pollInterval: opts.PollInterval,
		log:          opts.Logger,
		drafts:       make(map[string]*draft),
	}, nil
}

// assetOptions is the service's encoding of output protection.
func assetOptions(p media.Protection) int {
	switch p {
	case media.ProtectionStorageEncrypted:
		return 1
	case media.ProtectionCommonEncryption:
		return 2
	case media.ProtectionEnvelopeEncryption:
		return 4
	default:
		return 0
	}
}

func (g *Gateway) CreateAsset(ctx context.Context, name string, protection media.Protection) (media.Asset, error) {
	a, err := g.api.CreateAsset(ctx, mediaservices.CreateAssetRequest{Name: name, Options: assetOptions(protection)})
	if err != nil {
		return media.Asset{}, err
	}
	return media.Asset{ID: a.ID, Name: a.Name, Files: a.Files}, nil
}

func (g *Gateway) CreateWriteLocator(ctx context.Context, asset media.Asset, policy media.AccessPolicy) (media.Locator, error) {
	return g.createLocator(ctx, asset.ID, mediaservices.LocatorSas, "Write", policy)
}

func (g *Gateway) CreateReadLocator(ctx context.Context, asset media.OutputAsset, kind media.LocatorKind, policy media.AccessPolicy) (media.Locator, error) {
	return g.createLocator(ctx, asset.ID, kind.String(), "Read", policy)
}

func (g *Gateway) createLocator(ctx context.Context, assetID, kind, permissions string, policy media.AccessPolicy) (media.Locator, error) {
	l, err := g.api.CreateLocator(ctx, assetID, mediaservices.CreateLocatorRequest{
		Type:            kind,
		Permissions:     permissions,
		StartTime:       policy.Start.UTC(),
		DurationSeconds: int64(policy.Duration / time.Second),
	})
	if err != nil {
		return media.Locator{}, err
	}
	return media.Locator{ID: l.ID, Path: l.Path, Container: l.Container, ExpiresAt: l.ExpiresAt}, nil
}

func (g *Gateway) DeleteLocator(ctx context.Context, loc media.Locator) error {
	return g.api.DeleteLocator(ctx, loc.ID)
}

func (g *Gateway) sourceKey(src media.SourceFile) string {
	if src.Ref != "" {
		return src.Ref
	}
	return g.uploadPrefix + src.FileName()
}

func (g *Gateway) SourceSize(ctx context.Context, src media.SourceFile) (int64, error) {
	return g.blobs.Size(ctx, g.sourceKey(src))
}

// StartCopy copies the uploaded source into the locator's container in the
// background.
func (g *Gateway) StartCopy(ctx context.Context, src media.SourceFile, dest media.Locator, fileName string, progress media.CopyProgress) (<-chan error, error) {
	if dest.Container == "" {
		return nil, fmt.Errorf("gateway: locator %s has no container", dest.ID)
	}
	srcKey := g.sourceKey(src)
	dstKey := dest.Container + "/" + fileName

	done := make(chan error, 1)
	go func() {
		done <- g.blobs.Copy(ctx, srcKey, dstKey, progress)
	}()
	return done, nil
}

func (g *Gateway) RegisterFile(ctx context.Context, asset media.Asset, fileName string, size int64) (media.Asset, error) {
	a, err := g.api.AddFile(ctx, asset.ID, mediaservices.FileRequest{Name: fileName, Size: size, IsPrimary: true})
	if err != nil {
		return media.Asset{}, err
	}
	return media.Asset{ID: a.ID, Name: a.Name, Files: a.Files}, nil
}

func (g *Gateway) CreateJob(_ context.Context, name string) (media.Job, error) {
	id := "draft-" + uuid.NewString()

	g.mu.Lock()
	g.drafts[id] = &draft{name: name}
	g.mu.Unlock()

	return media.Job{ID: id, Name: name}, nil
}

func (g *Gateway) AddTask(_ context.Context, job media.Job, spec media.TaskSpec) (media.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	d, ok := g.drafts[job.ID]
	if !ok {
		return media.Task{}, fmt.Errorf("gateway: job %s is not a draft", job.ID)
	}
	task := mediaservices.Task{
		ID:              uuid.NewString(),
		Name:            spec.Name,
		ProcessorID:     spec.ProcessorID,
		Configuration:   spec.Configuration,
		InputTaskID:     spec.InputTaskID,
		OutputAssetName: spec.OutputName,
		OutputOptions:   assetOptions(spec.OutputProtection),
	}
	if spec.InputTaskID == "" {
		task.InputAssetID = spec.InputAsset.ID
	}
	d.tasks = append(d.tasks, task)
	return media.Task{ID: task.ID, Name: task.Name, OutputName: task.OutputAssetName}, nil
}

func (g *Gateway) Submit(ctx context.Context, job media.Job) (media.Job, error) {
	g.mu.Lock()
	d, ok := g.drafts[job.ID]
	delete(g.drafts, job.ID)
	g.mu.Unlock()
	if !ok {
		return media.Job{}, fmt.Errorf("gateway: job %s is not a draft", job.ID)
	}

	submitted, err := g.api.SubmitJob(ctx, mediaservices.JobRequest{Name: d.name, Tasks: d.tasks})
	if err != nil {
		return media.Job{}, err
	}
	return media.Job{ID: submitted.ID, Name: d.name}, nil
}

// WatchJob converts service polls into job statuses. A polling failure ends
// the stream early.
func (g *Gateway) WatchJob(ctx context.Context, job media.Job) (<-chan media.JobStatus, error) {
	updates := g.api.WatchJob(ctx, job.ID, g.pollInterval)
	out := make(chan media.JobStatus)

	go func() {
		defer close(out)
		for u := range updates {
			if u.Err != nil {
				g.log.Warn("failed to poll encoding job", "job_id", job.ID, "error", u.Err)
				return
			}
			select {
			case out <- jobStatus(u.Job):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func jobStatus(j mediaservices.Job) media.JobStatus {
	st := media.JobStatus{State: media.JobState(j.State)}
	if j.StartTime != nil {
		st.StartedAt = *j.StartTime
	}
	for _, t := range j.Tasks {
		for _, e := range t.Errors {
			st.Errors = append(st.Errors, media.TaskError{TaskID: t.ID, Code: e.Code, Message: e.Message})
		}
	}
	return st
}

func (g *Gateway) JobOutputs(ctx context.Context, job media.Job) ([]media.OutputAsset, error) {
	outputs, err := g.api.JobOutputs(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	res := make([]media.OutputAsset, 0, len(outputs))
	for _, o := range outputs {
		res = append(res, media.OutputAsset{ID: o.ID, Name: o.Name, TaskID: o.TaskID, Files: o.Files})
	}
	return res, nil
}

func (g *Gateway) ListLocatorFiles(ctx context.Context, loc media.Locator) ([]string, error) {
	if loc.Container == "" {
		return nil, fmt.Errorf("gateway: locator %s has no container", loc.ID)
	}
	return g.blobs.List(ctx, loc.Container+"/")
}

// BlobSize resolves a published URL to its object key. Streaming manifest
// URLs are sized by their manifest file.
func (g *Gateway) BlobSize(ctx context.Context, rawURL string) (int64, error) {
	key, err := g.blobKey(rawURL)
	if err != nil {
		return 0, err
	}
	return g.blobs.Size(ctx, key)
}

func (g *Gateway) blobKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("gateway: parse blob url: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	key = strings.TrimSuffix(key, "/manifest")
	key = strings.TrimPrefix(key, g.blobs.Bucket()+"/")
	if key == "" {
		return "", fmt.Errorf("gateway: no object key in %q", rawURL)
	}
	return key, nil
}

func (g *Gateway) DeleteContainer(ctx context.Context, container string) error {
	if container == "" {
		return errors.New("gateway: empty container")
	}
	return g.blobs.DeletePrefix(ctx, container+"/")
}

// DeletePublished deletes the container behind a published asset URL.
func (g *Gateway) DeletePublished(ctx context.Context, rawURL string) error {
	key, err := g.blobKey(rawURL)
	if err != nil {
		return err
	}
	container, _, ok := strings.Cut(key, "/")
	if !ok || container == "" {
		return fmt.Errorf("gateway: no container in %q", rawURL)
	}
	return g.DeleteContainer(ctx, container)
}
