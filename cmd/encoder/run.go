package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"thirdcoast.systems/mediaportal/internal/media"
)

// batch is the part of the orchestrator the runner drives.
type batch interface {
	Changes() <-chan struct{}
	Sync(ctx context.Context)
	Advance(ctx context.Context) media.Status
	CurrentState() media.State
}

var errBatchFailed = errors.New("media batch failed")

// runner advances one configured batch until it returns to Ready.
type runner struct {
	batch batch
	// maxWait caps the poll interval the batch asks for.
	maxWait time.Duration
	log     *slog.Logger
}

func (r *runner) run(ctx context.Context) (media.Status, error) {
	var last string
	for {
		st := r.batch.Advance(ctx)
		if st.Message != "" && st.Message != last {
			r.log.Info(st.Message, "state", st.State)
			last = st.Message
		}

		// Advance only reports a refreshed Ready batch after a reset.
		if st.State == media.StateReady && st.Refresh {
			if st.Message != media.MessageJobsFinished {
				return st, errBatchFailed
			}
			return st, nil
		}
		if st.Message == media.MessageSessionExpired {
			return st, errBatchFailed
		}

		if err := r.wait(ctx, st.PollInterval); err != nil {
			return st, err
		}
	}
}

func (r *runner) wait(ctx context.Context, d time.Duration) error {
	if r.maxWait > 0 && (d <= 0 || d > r.maxWait) {
		d = r.maxWait
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-r.batch.Changes():
			r.batch.Sync(ctx)
			if r.batch.CurrentState() == media.StateIngested || r.batch.CurrentState().Terminal() {
				return nil
			}
		}
	}
}
