// Package mediaservices is a client for the REST API of the remote media
// encoding service.
package mediaservices

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout           = 30 * time.Second
	defaultRequestsPerSecond = 10
	defaultMaxRetries        = 5
	defaultRetryBase         = 200 * time.Millisecond
)

// Job states reported by the service.
const (
	StateQueued     = "Queued"
	StateScheduled  = "Scheduled"
	StateProcessing = "Processing"
	StateFinished   = "Finished"
	StateCanceled   = "Canceled"
	StateCanceling  = "Canceling"
	StateError      = "Error"
)

// Locator types.
const (
	LocatorSas            = "Sas"
	LocatorOnDemandOrigin = "OnDemandOrigin"
)

type Options struct {
	BaseURL string
	Account string
	Key     string
	// Timeout bounds a single HTTP request.
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        uint64
	// RetryBase is the first Fibonacci backoff step.
	RetryBase  time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	account    string
	key        string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	retryBase  time.Duration
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	retryBase := opts.RetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}

	return &Client{
		baseURL:    baseURL,
		account:    opts.Account,
		key:        opts.Key,
		http:       httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
		maxRetries: maxRetries,
		retryBase:  retryBase,
	}
}

// APIError is a non-success response from the service.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mediaservices: %s %s: unexpected status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// do sends one JSON request. Network errors, 429 and 5xx responses are
// retried with Fibonacci backoff.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("mediaservices: encode %s %s: %w", method, path, err)
		}
		payload = b
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.key != "" {
			req.Header.Set("Authorization", "Bearer "+c.key)
		}
		if c.account != "" {
			req.Header.Set("X-Account-Name", c.account)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
			if retryable(resp.StatusCode) {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}

		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("mediaservices: decode %s %s: %w", method, path, err)
		}
		return nil
	})
}

type Asset struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Options int      `json:"options"`
	Files   []string `json:"files,omitempty"`
}

type CreateAssetRequest struct {
	Name    string `json:"name"`
	Options int    `json:"options"`
}

func (c *Client) CreateAsset(ctx context.Context, req CreateAssetRequest) (Asset, error) {
	var out Asset
	err := c.do(ctx, http.MethodPost, "/assets", req, &out)
	return out, err
}

type FileRequest struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	IsPrimary bool   `json:"is_primary"`
}

// AddFile registers a blob already copied into the asset's container.
func (c *Client) AddFile(ctx context.Context, assetID string, req FileRequest) (Asset, error) {
	var out Asset
	err := c.do(ctx, http.MethodPost, "/assets/"+url.PathEscape(assetID)+"/files", req, &out)
	return out, err
}

type Locator struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id"`
	Type      string    `json:"type"`
	Path      string    `json:"path"`
	Container string    `json:"container"`
	StartTime time.Time `json:"start_time"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CreateLocatorRequest struct {
	Type            string    `json:"type"`
	Permissions     string    `json:"permissions"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int64     `json:"duration_seconds"`
}

func (c *Client) CreateLocator(ctx context.Context, assetID string, req CreateLocatorRequest) (Locator, error) {
	var out Locator
	err := c.do(ctx, http.MethodPost, "/assets/"+url.PathEscape(assetID)+"/locators", req, &out)
	return out, err
}

// DeleteLocator revokes a locator. Unknown locators are ignored.
func (c *Client) DeleteLocator(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/locators/"+url.PathEscape(id), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

type Task struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ProcessorID     string `json:"processor_id"`
	Configuration   string `json:"configuration"`
	InputAssetID    string `json:"input_asset_id,omitempty"`
	InputTaskID     string `json:"input_task_id,omitempty"`
	OutputAssetName string `json:"output_asset_name"`
	OutputOptions   int    `json:"output_options"`
}

type JobRequest struct {
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TaskStatus struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	State  string        `json:"state"`
	Errors []ErrorDetail `json:"errors,omitempty"`
}

type Job struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	State     string       `json:"state"`
	StartTime *time.Time   `json:"start_time,omitempty"`
	Tasks     []TaskStatus `json:"tasks,omitempty"`
}

// Stopped reports whether the job reached a final state.
func (j Job) Stopped() bool {
	switch j.State {
	case StateFinished, StateCanceled, StateError:
		return true
	}
	return false
}

// SubmitJob creates and starts a job with all of its tasks. Task ids chosen
// by the caller are kept by the service.
func (c *Client) SubmitJob(ctx context.Context, req JobRequest) (Job, error) {
	var out Job
	err := c.do(ctx, http.MethodPost, "/jobs", req, &out)
	return out, err
}

func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var out Job
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &out)
	return out, err
}

type OutputAsset struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	TaskID string   `json:"task_id"`
	Files  []string `json:"files"`
}

func (c *Client) JobOutputs(ctx context.Context, id string) ([]OutputAsset, error) {
	var out []OutputAsset
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id)+"/outputs", nil, &out)
	return out, err
}

type Processor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Vendor  string `json:"vendor"`
	Version string `json:"version"`
}

func (c *Client) Processors(ctx context.Context) ([]Processor, error) {
	var out []Processor
	err := c.do(ctx, http.MethodGet, "/processors", nil, &out)
	return out, err
}

// JobUpdate is one observation of a watched job. Err is set when polling
// failed for good; it is the last update sent.
type JobUpdate struct {
	Job Job
	Err error
}

// WatchJob polls a job every interval and sends an update whenever its state
// changes. The channel is closed after a final state, a polling error or
// when ctx is done.
func (c *Client) WatchJob(ctx context.Context, id string, interval time.Duration) <-chan JobUpdate {
	updates := make(chan JobUpdate, 1)

	go func() {
		defer close(updates)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last string
		for {
			job, err := c.GetJob(ctx, id)
			if err != nil {
				if ctx.Err() == nil {
					select {
					case updates <- JobUpdate{Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}

			if job.State != last {
				last = job.State
				select {
				case updates <- JobUpdate{Job: job}:
				case <-ctx.Done():
					return
				}
			}
			if job.Stopped() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return updates
}
