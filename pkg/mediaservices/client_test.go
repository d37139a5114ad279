package mediaservices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:           srv.URL + "/",
		Account:           "acct",
		Key:               "secret",
		RequestsPerSecond: 1000,
		MaxRetries:        3,
		RetryBase:         time.Millisecond,
	})
}

func TestClient_CreateAssetSendsCredentials(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/assets", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "acct", r.Header.Get("X-Account-Name"))

		var req CreateAssetRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "clip.mp4_1", req.Name)
		require.Equal(t, 1, req.Options)

		_ = json.NewEncoder(w).Encode(Asset{ID: "asset-1", Name: req.Name, Options: req.Options})
	}))

	asset, err := c.CreateAsset(context.Background(), CreateAssetRequest{Name: "clip.mp4_1", Options: 1})
	require.NoError(t, err)
	require.Equal(t, "asset-1", asset.ID)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_ = json.NewEncoder(w).Encode(Job{ID: "job-1", State: StateQueued})
		}
	}))

	job, err := c.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, StateQueued, job.State)
	require.EqualValues(t, 3, calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad preset", http.StatusBadRequest)
	}))

	_, err := c.SubmitJob(context.Background(), JobRequest{Name: "job"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "bad preset", apiErr.Body)
	require.EqualValues(t, 1, calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Processors(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 4, calls.Load())
}

func TestClient_DeleteLocatorIgnoresNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/locators/loc-1", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))

	require.NoError(t, c.DeleteLocator(context.Background(), "loc-1"))
}

func TestClient_SubmitJobKeepsTaskIDs(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tasks, 2)
		require.Equal(t, "t1", req.Tasks[1].InputTaskID)

		resp := Job{ID: "job-9", Name: req.Name, State: StateQueued}
		for _, task := range req.Tasks {
			resp.Tasks = append(resp.Tasks, TaskStatus{ID: task.ID, Name: task.Name, State: StateQueued})
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}))

	job, err := c.SubmitJob(context.Background(), JobRequest{
		Name: "clip",
		Tasks: []Task{
			{ID: "t1", Name: "encode", InputAssetID: "asset-1"},
			{ID: "t2", Name: "protect", InputTaskID: "t1"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "job-9", job.ID)
	require.Equal(t, "t2", job.Tasks[1].ID)
}

func TestClient_WatchJobReportsChangesUntilStopped(t *testing.T) {
	states := []string{StateQueued, StateQueued, StateProcessing, StateProcessing, StateFinished}
	var mu sync.Mutex
	polls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		state := states[min(polls, len(states)-1)]
		polls++
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", State: state})
	}))

	var seen []string
	for u := range c.WatchJob(context.Background(), "job-1", time.Millisecond) {
		require.NoError(t, u.Err)
		seen = append(seen, u.Job.State)
	}
	require.Equal(t, []string{StateQueued, StateProcessing, StateFinished}, seen)
}

func TestClient_WatchJobReportsPollingError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	var updates []JobUpdate
	for u := range c.WatchJob(context.Background(), "job-1", time.Millisecond) {
		updates = append(updates, u)
	}
	require.Len(t, updates, 1)
	require.Error(t, updates[0].Err)
}

func TestClient_WatchJobStopsOnCancel(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", State: StateProcessing})
	}))

	ctx, cancel := context.WithCancel(context.Background())
	updates := c.WatchJob(ctx, "job-1", time.Millisecond)
	first := <-updates
	require.Equal(t, StateProcessing, first.Job.State)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
