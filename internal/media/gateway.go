package media

import (
	"context"
	"time"
)

// Media processors known to the remote encoding service.
const (
	ProcessorEncoder   = "Windows Azure Media Encoder"
	ProcessorEncryptor = "Windows Azure Media Encryptor"
	ProcessorDecryptor = "Storage Decryption"

	// ThumbnailConfiguration is the encoder configuration producing thumbnails.
	ThumbnailConfiguration = "Thumbnails"
)

// Asset is a remote media asset.
type Asset struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Files []string `json:"files,omitempty"`
}

// LocatorKind selects how a locator exposes an asset.
type LocatorKind int

const (
	// LocatorSAS grants direct signed access to the asset's blobs.
	LocatorSAS LocatorKind = iota
	// LocatorOnDemandOrigin serves the asset through the streaming origin.
	LocatorOnDemandOrigin
)

func (k LocatorKind) String() string {
	if k == LocatorOnDemandOrigin {
		return "OnDemandOrigin"
	}
	return "Sas"
}

// AccessPolicy bounds the lifetime of a locator.
type AccessPolicy struct {
	Start    time.Time
	Duration time.Duration
}

// Locator is a time limited access path into an asset's storage container.
type Locator struct {
	ID string `json:"id"`
	// Path is the container URL including any signature query string.
	Path string `json:"path"`
	// Container identifies the storage container behind the locator.
	Container string    `json:"container"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Job is a remote encoding job. A job returned by CreateJob is a draft until
// it has been submitted.
type Job struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TaskSpec describes one task of a job.
type TaskSpec struct {
	Name          string
	ProcessorID   string
	Configuration string
	// InputAsset is the task input unless InputTaskID chains the task onto
	// the output of an earlier task of the same job.
	InputAsset       Asset
	InputTaskID      string
	OutputName       string
	OutputProtection Protection
}

// Task is a task added to a job.
type Task struct {
	ID         string
	Name       string
	OutputName string
}

// TaskError is an error reported by the service for one task.
type TaskError struct {
	TaskID  string `json:"task_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobStatus is one observation of a remote job.
type JobStatus struct {
	State     JobState    `json:"state"`
	StartedAt time.Time   `json:"started_at"`
	Errors    []TaskError `json:"errors,omitempty"`
}

// OutputAsset is an asset produced by a task of a finished job.
type OutputAsset struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	TaskID string   `json:"task_id"`
	Files  []string `json:"files"`
}

// CopyProgress receives the number of bytes copied so far.
type CopyProgress func(copied, total int64)

// Ingestor moves source files into remote assets.
type Ingestor interface {
	CreateAsset(ctx context.Context, name string, protection Protection) (Asset, error)
	CreateWriteLocator(ctx context.Context, asset Asset, policy AccessPolicy) (Locator, error)
	DeleteLocator(ctx context.Context, loc Locator) error
	SourceSize(ctx context.Context, src SourceFile) (int64, error)
	// StartCopy begins copying src into the locator's container and returns
	// immediately. The returned channel yields the copy result once.
	StartCopy(ctx context.Context, src SourceFile, dest Locator, fileName string, progress CopyProgress) (<-chan error, error)
	RegisterFile(ctx context.Context, asset Asset, fileName string, size int64) (Asset, error)
}

// Encoder composes, submits and observes encoding jobs.
type Encoder interface {
	CreateJob(ctx context.Context, name string) (Job, error)
	AddTask(ctx context.Context, job Job, spec TaskSpec) (Task, error)
	Submit(ctx context.Context, job Job) (Job, error)
	// WatchJob streams state changes of a submitted job. The channel is
	// closed after a stopped state or when ctx is done.
	WatchJob(ctx context.Context, job Job) (<-chan JobStatus, error)
}

// Publisher exposes the outputs of finished jobs.
type Publisher interface {
	JobOutputs(ctx context.Context, job Job) ([]OutputAsset, error)
	CreateReadLocator(ctx context.Context, asset OutputAsset, kind LocatorKind, policy AccessPolicy) (Locator, error)
	// ListLocatorFiles lists blobs behind a locator for assets without
	// registered files.
	ListLocatorFiles(ctx context.Context, loc Locator) ([]string, error)
	// BlobSize returns the size of the blob behind a published URL.
	BlobSize(ctx context.Context, url string) (int64, error)
}

// Gateway is the remote encoding service.
type Gateway interface {
	Ingestor
	Encoder
	Publisher
}

// BlobCleaner deletes temporary storage containers.
type BlobCleaner interface {
	DeleteContainer(ctx context.Context, container string) error
}

// PresetResolver validates encoder presets and resolves their configuration.
type PresetResolver interface {
	HasPreset(id string) bool
	// PresetConfiguration returns the task configuration for a preset. Ids
	// without a configuration file are passed to the service unchanged.
	PresetConfiguration(id string) (string, error)
	ProtectionConfiguration(p Protection) (string, error)
}
