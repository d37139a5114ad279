package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const mediaAssetColumns = `collection, row_key, original_file, encoding, protection, renderer, created_at,
	processing_ms, expires_at, status, size_bytes, url, thumbnail_url`

const createMediaAsset = `-- name: CreateMediaAsset :exec
INSERT INTO media_assets (
	collection, row_key, original_file, encoding, protection, renderer, created_at,
	processing_ms, expires_at, status, size_bytes, url, thumbnail_url
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

type CreateMediaAssetParams struct {
	Collection   string
	RowKey       string
	OriginalFile string
	Encoding     string
	Protection   string
	Renderer     string
	CreatedAt    pgtype.Timestamptz
	ProcessingMs int64
	ExpiresAt    pgtype.Timestamptz
	Status       string
	SizeBytes    int64
	Url          string
	ThumbnailUrl string
}

func (q *Queries) CreateMediaAsset(ctx context.Context, arg CreateMediaAssetParams) error {
	_, err := q.db.Exec(ctx, createMediaAsset,
		arg.Collection,
		arg.RowKey,
		arg.OriginalFile,
		arg.Encoding,
		arg.Protection,
		arg.Renderer,
		arg.CreatedAt,
		arg.ProcessingMs,
		arg.ExpiresAt,
		arg.Status,
		arg.SizeBytes,
		arg.Url,
		arg.ThumbnailUrl,
	)
	return err
}

const getMediaAsset = `-- name: GetMediaAsset :one
SELECT ` + mediaAssetColumns + `
FROM media_assets
WHERE collection = $1 AND row_key = $2
`

type GetMediaAssetParams struct {
	Collection string
	RowKey     string
}

func (q *Queries) GetMediaAsset(ctx context.Context, arg GetMediaAssetParams) (MediaAsset, error) {
	row := q.db.QueryRow(ctx, getMediaAsset, arg.Collection, arg.RowKey)
	var i MediaAsset
	err := row.Scan(
		&i.Collection,
		&i.RowKey,
		&i.OriginalFile,
		&i.Encoding,
		&i.Protection,
		&i.Renderer,
		&i.CreatedAt,
		&i.ProcessingMs,
		&i.ExpiresAt,
		&i.Status,
		&i.SizeBytes,
		&i.Url,
		&i.ThumbnailUrl,
	)
	return i, err
}

const updateMediaAsset = `-- name: UpdateMediaAsset :execrows
UPDATE media_assets
SET original_file = $3,
	encoding = $4,
	protection = $5,
	renderer = $6,
	processing_ms = $7,
	expires_at = $8,
	status = $9,
	size_bytes = $10,
	url = $11,
	thumbnail_url = $12
WHERE collection = $1 AND row_key = $2
`

type UpdateMediaAssetParams struct {
	Collection   string
	RowKey       string
	OriginalFile string
	Encoding     string
	Protection   string
	Renderer     string
	ProcessingMs int64
	ExpiresAt    pgtype.Timestamptz
	Status       string
	SizeBytes    int64
	Url          string
	ThumbnailUrl string
}

func (q *Queries) UpdateMediaAsset(ctx context.Context, arg UpdateMediaAssetParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateMediaAsset,
		arg.Collection,
		arg.RowKey,
		arg.OriginalFile,
		arg.Encoding,
		arg.Protection,
		arg.Renderer,
		arg.ProcessingMs,
		arg.ExpiresAt,
		arg.Status,
		arg.SizeBytes,
		arg.Url,
		arg.ThumbnailUrl,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteMediaAsset = `-- name: DeleteMediaAsset :execrows
DELETE FROM media_assets
WHERE collection = $1 AND row_key = $2
`

type DeleteMediaAssetParams struct {
	Collection string
	RowKey     string
}

func (q *Queries) DeleteMediaAsset(ctx context.Context, arg DeleteMediaAssetParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteMediaAsset, arg.Collection, arg.RowKey)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listInProgressMediaAssets = `-- name: ListInProgressMediaAssets :many
SELECT ` + mediaAssetColumns + `
FROM media_assets
WHERE status <> 'Finished'
ORDER BY created_at DESC, row_key ASC
LIMIT $1
`

func (q *Queries) ListInProgressMediaAssets(ctx context.Context, limit int32) ([]MediaAsset, error) {
	rows, err := q.db.Query(ctx, listInProgressMediaAssets, limit)
	if err != nil {
		return nil, err
	}
	return scanMediaAssets(rows)
}

// Search matches any of title, encoding, protection and status, case
// insensitive. A limit of 0 returns every match.
const listMediaAssets = `-- name: ListMediaAssets :many
SELECT ` + mediaAssetColumns + `
FROM media_assets
WHERE $1::text = ''
	OR strpos(lower(collection), lower($1::text)) > 0
	OR strpos(lower(encoding), lower($1::text)) > 0
	OR strpos(lower(protection), lower($1::text)) > 0
	OR strpos(lower(status), lower($1::text)) > 0
ORDER BY created_at DESC, row_key ASC
OFFSET $2
LIMIT NULLIF($3::int, 0)
`

type ListMediaAssetsParams struct {
	Search string
	Offset int32
	Limit  int32
}

func (q *Queries) ListMediaAssets(ctx context.Context, arg ListMediaAssetsParams) ([]MediaAsset, error) {
	rows, err := q.db.Query(ctx, listMediaAssets, arg.Search, arg.Offset, arg.Limit)
	if err != nil {
		return nil, err
	}
	return scanMediaAssets(rows)
}

const countMediaAssets = `-- name: CountMediaAssets :one
SELECT count(*)
FROM media_assets
WHERE $1::text = ''
	OR strpos(lower(collection), lower($1::text)) > 0
	OR strpos(lower(encoding), lower($1::text)) > 0
	OR strpos(lower(protection), lower($1::text)) > 0
	OR strpos(lower(status), lower($1::text)) > 0
`

func (q *Queries) CountMediaAssets(ctx context.Context, search string) (int64, error) {
	row := q.db.QueryRow(ctx, countMediaAssets, search)
	var count int64
	err := row.Scan(&count)
	return count, err
}

type scannableRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func scanMediaAssets(rows scannableRows) ([]MediaAsset, error) {
	defer rows.Close()
	var items []MediaAsset
	for rows.Next() {
		var i MediaAsset
		if err := rows.Scan(
			&i.Collection,
			&i.RowKey,
			&i.OriginalFile,
			&i.Encoding,
			&i.Protection,
			&i.Renderer,
			&i.CreatedAt,
			&i.ProcessingMs,
			&i.ExpiresAt,
			&i.Status,
			&i.SizeBytes,
			&i.Url,
			&i.ThumbnailUrl,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
