package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/internal/media/mediatest"
)

func newBatch(t *testing.T) (*media.Orchestrator, *mediatest.Gateway, *media.MemoryStore) {
	t.Helper()
	store := media.NewMemoryStore()
	gw := mediatest.NewGateway()
	o, err := media.NewOrchestrator(media.Options{
		Store:   store,
		Gateway: gw,
		Cleaner: gw,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(o.Dispose)

	require.NoError(t, o.Configure(context.Background(), media.BatchOptions{
		Files:       []media.SourceFile{{Name: "keynote.mp4", Size: 4096, Ref: "uploads/keynote.mp4"}},
		Encoders:    []string{"H264 Broadband 720p"},
		ProcessorID: media.ProcessorEncoder,
	}))
	return o, gw, store
}

func newRunner(b batch) *runner {
	return &runner{batch: b, maxWait: 10 * time.Millisecond, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestRunner_RunsToPublished(t *testing.T) {
	o, gw, store := newBatch(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		for ctx.Err() == nil {
			if o.CurrentState() == media.StateStarted {
				gw.FinishAll()
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	st, err := newRunner(o).run(ctx)
	require.NoError(t, err)
	require.Equal(t, media.MessageJobsFinished, st.Message)
	require.Equal(t, media.StateReady, st.State)

	recs, _, err := store.List(context.Background(), media.ListParams{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, media.StatusFinished, recs[0].Status)
}

func TestRunner_ReportsFailure(t *testing.T) {
	o, gw, _ := newBatch(t)
	gw.Fail("CreateAsset", errors.New("service unavailable"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := newRunner(o).run(ctx)
	require.ErrorIs(t, err, errBatchFailed)
	require.Equal(t, media.StateReady, st.State)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	o, gw, _ := newBatch(t)
	gw.ManualCopy = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newRunner(o).run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunner_WaitCapsInterval(t *testing.T) {
	o, _, _ := newBatch(t)
	r := newRunner(o)

	start := time.Now()
	require.NoError(t, r.wait(context.Background(), time.Hour))
	require.Less(t, time.Since(start), time.Second)
}
