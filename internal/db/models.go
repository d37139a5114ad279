package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type MediaAsset struct {
	Collection   string             `json:"collection"`
	RowKey       string             `json:"row_key"`
	OriginalFile string             `json:"original_file"`
	Encoding     string             `json:"encoding"`
	Protection   string             `json:"protection"`
	Renderer     string             `json:"renderer"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
	ProcessingMs int64              `json:"processing_ms"`
	ExpiresAt    pgtype.Timestamptz `json:"expires_at"`
	Status       string             `json:"status"`
	SizeBytes    int64              `json:"size_bytes"`
	Url          string             `json:"url"`
	ThumbnailUrl string             `json:"thumbnail_url"`
}
