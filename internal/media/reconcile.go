package media

import (
	"context"
	"errors"
)

// reconcile writes published outputs into their records. seen spans one
// publication pass: a second output for a record already written in the
// pass is stored as a copy under a fresh row key.
func (o *Orchestrator) reconcile(ctx context.Context, u *JobUnit, outputs []PublishedOutput, seen map[RecordKey]bool) {
	for _, out := range outputs {
		rec, err := o.store.Get(ctx, out.Key.Collection, out.Key.Row)
		if errors.Is(err, ErrRecordNotFound) {
			o.log.Warn("skipping published output", "error", &ConsistencyWarning{Key: out.Key}, "asset_id", out.AssetID)
			continue
		}
		if err != nil {
			o.log.Error("failed to load media record", "key", out.Key.String(), "error", err)
			continue
		}

		rec.URL = out.URL
		rec.ThumbnailURL = out.ThumbnailURL
		rec.SizeBytes = o.blobSize(ctx, out.URL)
		if !o.startedAt.IsZero() {
			rec.ProcessingTime = o.now().Sub(o.startedAt)
		}
		if u.jobState != "" {
			rec.Status = u.jobState.String()
		}

		if seen[out.Key] {
			rec.Row = NewRowKey(o.now())
			err = o.store.Create(ctx, rec)
		} else {
			seen[out.Key] = true
			err = o.store.Update(ctx, rec)
		}
		if err != nil {
			o.log.Error("failed to save published media record", "key", rec.Key().String(), "error", err)
			continue
		}

		o.dirty = true
		o.log.Info("media record published",
			"key", rec.Key().String(),
			"variant", out.Variant,
			"size", rec.SizeBytes,
		)
	}
}

func (o *Orchestrator) blobSize(ctx context.Context, url string) int64 {
	if url == "" {
		return 0
	}
	size, err := o.gw.BlobSize(ctx, url)
	if err != nil {
		o.log.Debug("blob size unavailable", "url", url, "error", err)
		return 0
	}
	return size
}
