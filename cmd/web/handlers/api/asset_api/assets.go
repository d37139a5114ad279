// Package asset_api lists and deletes published media records.
package asset_api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediaportal/cmd/web/handlers/common"
	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/internal/presets"
	"thirdcoast.systems/mediaportal/pkg/utils/format"
)

const (
	defaultPageSize = 25
	titleLen        = 60
)

// Publisher removes published asset containers.
type Publisher interface {
	DeletePublished(ctx context.Context, url string) error
}

// AssetView is a media record as shown in the asset grid.
type AssetView struct {
	*media.Record
	// Title is the collection shortened for the grid.
	Title          string `json:"title"`
	Size           string `json:"size"`
	ProcessingTime string `json:"processing_time_display"`
	Expiry         string `json:"expiry"`
	InProgress     bool   `json:"in_progress"`
}

func newAssetViews(recs []*media.Record, now time.Time) []AssetView {
	views := make([]AssetView, 0, len(recs))
	for _, r := range recs {
		views = append(views, AssetView{
			Record:         r,
			Title:          format.Truncate(r.Collection, titleLen),
			Size:           format.Size(r.SizeBytes),
			ProcessingTime: format.Elapsed(r.ProcessingTime),
			Expiry:         format.Expiry(r.ExpiresAt, now),
			InProgress:     r.InProgress(),
		})
	}
	return views
}

// HandleList returns a page of records, newest first.
func HandleList(store media.AssetRecordStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		offset, err := common.QueryInt(c, "offset", 0)
		if err != nil {
			return err
		}
		limit, err := common.QueryInt(c, "limit", defaultPageSize)
		if err != nil {
			return err
		}

		params := media.ListParams{Search: c.QueryParam("q"), Offset: max(offset, 0), Limit: max(limit, 0)}
		recs, total, err := store.List(c.Request().Context(), params)
		if err != nil {
			slog.Error("failed to list media assets", "error", err)
			return common.ErrInternal("failed to list media assets")
		}

		return c.JSON(http.StatusOK, map[string]any{
			"total":  total,
			"offset": params.Offset,
			"limit":  params.Limit,
			"items":  newAssetViews(recs, time.Now()),
		})
	}
}

// HandleInProgress returns the records that have not finished encoding.
func HandleInProgress(store media.AssetRecordStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		recs, err := store.ListInProgress(c.Request().Context(), media.DefaultInProgressLimit)
		if err != nil {
			slog.Error("failed to list media assets in progress", "error", err)
			return common.ErrInternal("failed to list media assets")
		}
		return c.JSON(http.StatusOK, newAssetViews(recs, time.Now()))
	}
}

// HandleDelete deletes a record and, best effort, its published container.
func HandleDelete(store media.AssetRecordStore, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		collection, row := c.Param("collection"), c.Param("row")

		rec, err := store.Get(ctx, collection, row)
		if errors.Is(err, media.ErrRecordNotFound) {
			return common.ErrNotFound("media asset not found")
		}
		if err != nil {
			slog.Error("failed to get media asset", "error", err, "collection", collection, "row", row)
			return common.ErrInternal("failed to delete media asset")
		}

		if _, err := store.Delete(ctx, collection, row); err != nil {
			slog.Error("failed to delete media asset", "error", err, "collection", collection, "row", row)
			return common.ErrInternal("failed to delete media asset")
		}

		if rec.URL != "" && pub != nil {
			if err := pub.DeletePublished(ctx, rec.URL); err != nil {
				slog.Warn("failed to delete published asset", "error", err, "url", rec.URL)
			}
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// HandlePresets returns the preset picker tree.
func HandlePresets(catalog *presets.Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, catalog.Tree())
	}
}
