package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"thirdcoast.systems/mediaportal/internal/media"
)

var _ media.AssetRecordStore = (*AssetStore)(nil)

// AssetStore keeps media records in the media_assets table.
type AssetStore struct {
	q *Queries
}

func NewAssetStore(db DBTX) *AssetStore {
	return &AssetStore{q: New(db)}
}

func (s *AssetStore) Create(ctx context.Context, rec *media.Record) error {
	err := s.q.CreateMediaAsset(ctx, CreateMediaAssetParams{
		Collection:   rec.Collection,
		RowKey:       rec.Row,
		OriginalFile: rec.OriginalFile,
		Encoding:     rec.Encoding,
		Protection:   rec.Protection,
		Renderer:     rec.Renderer,
		CreatedAt:    Timestamptz(rec.CreatedAt),
		ProcessingMs: rec.ProcessingTime.Milliseconds(),
		ExpiresAt:    Timestamptz(rec.ExpiresAt),
		Status:       rec.Status,
		SizeBytes:    rec.SizeBytes,
		Url:          rec.URL,
		ThumbnailUrl: rec.ThumbnailURL,
	})
	if IsUniqueViolationErr(err) {
		return fmt.Errorf("media record %s already exists: %w", rec.Key(), err)
	}
	if err != nil {
		return fmt.Errorf("create media record: %w", err)
	}
	return nil
}

func (s *AssetStore) Get(ctx context.Context, collection, row string) (*media.Record, error) {
	a, err := s.q.GetMediaAsset(ctx, GetMediaAssetParams{Collection: collection, RowKey: row})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, media.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media record: %w", err)
	}
	return recordFromRow(a), nil
}

func (s *AssetStore) Update(ctx context.Context, rec *media.Record) error {
	n, err := s.q.UpdateMediaAsset(ctx, UpdateMediaAssetParams{
		Collection:   rec.Collection,
		RowKey:       rec.Row,
		OriginalFile: rec.OriginalFile,
		Encoding:     rec.Encoding,
		Protection:   rec.Protection,
		Renderer:     rec.Renderer,
		ProcessingMs: rec.ProcessingTime.Milliseconds(),
		ExpiresAt:    Timestamptz(rec.ExpiresAt),
		Status:       rec.Status,
		SizeBytes:    rec.SizeBytes,
		Url:          rec.URL,
		ThumbnailUrl: rec.ThumbnailURL,
	})
	if err != nil {
		return fmt.Errorf("update media record: %w", err)
	}
	if n == 0 {
		return media.ErrRecordNotFound
	}
	return nil
}

func (s *AssetStore) Delete(ctx context.Context, collection, row string) (bool, error) {
	n, err := s.q.DeleteMediaAsset(ctx, DeleteMediaAssetParams{Collection: collection, RowKey: row})
	if err != nil {
		return false, fmt.Errorf("delete media record: %w", err)
	}
	return n > 0, nil
}

func (s *AssetStore) ListInProgress(ctx context.Context, limit int) ([]*media.Record, error) {
	if limit <= 0 {
		limit = media.DefaultInProgressLimit
	}
	rows, err := s.q.ListInProgressMediaAssets(ctx, clampInt32(limit))
	if err != nil {
		return nil, fmt.Errorf("list in progress media records: %w", err)
	}
	return recordsFromRows(rows), nil
}

func (s *AssetStore) List(ctx context.Context, params media.ListParams) ([]*media.Record, int, error) {
	total, err := s.q.CountMediaAssets(ctx, params.Search)
	if err != nil {
		return nil, 0, fmt.Errorf("count media records: %w", err)
	}
	rows, err := s.q.ListMediaAssets(ctx, ListMediaAssetsParams{
		Search: params.Search,
		Offset: clampInt32(max(params.Offset, 0)),
		Limit:  clampInt32(max(params.Limit, 0)),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list media records: %w", err)
	}
	return recordsFromRows(rows), int(total), nil
}

func recordFromRow(a MediaAsset) *media.Record {
	return &media.Record{
		Collection:     a.Collection,
		Row:            a.RowKey,
		OriginalFile:   a.OriginalFile,
		Encoding:       a.Encoding,
		Protection:     a.Protection,
		Renderer:       a.Renderer,
		CreatedAt:      TimeOrZero(a.CreatedAt),
		ProcessingTime: time.Duration(a.ProcessingMs) * time.Millisecond,
		ExpiresAt:      TimeOrZero(a.ExpiresAt),
		Status:         a.Status,
		SizeBytes:      a.SizeBytes,
		URL:            a.Url,
		ThumbnailURL:   a.ThumbnailUrl,
	}
}

func recordsFromRows(rows []MediaAsset) []*media.Record {
	out := make([]*media.Record, 0, len(rows))
	for _, a := range rows {
		out = append(out, recordFromRow(a))
	}
	return out
}

func clampInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}
