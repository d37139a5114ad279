package encoding_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediaportal/cmd/web/auth"
	"thirdcoast.systems/mediaportal/cmd/web/handlers/common"
	"thirdcoast.systems/mediaportal/cmd/web/internal/batches"
	"thirdcoast.systems/mediaportal/internal/media"
)

// HandleAdvance moves the session batch forward one step.
func HandleAdvance(sm *auth.SessionManager, reg *batches.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, ok := common.ExistingBatch(c, sm, reg)
		if !ok {
			return c.JSON(http.StatusOK, newStatusResponse(expiredStatus()))
		}

		ctx := c.Request().Context()
		st := refine(ctx, b, b.Advance(ctx))
		return c.JSON(http.StatusOK, newStatusResponse(st))
	}
}

// HandleState reports the batch state and its input files.
func HandleState(sm *auth.SessionManager, reg *batches.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, ok := common.ExistingBatch(c, sm, reg)
		if !ok {
			return common.ErrNotFound(media.MessageSessionExpired)
		}

		ctx := c.Request().Context()
		b.Sync(ctx)
		return c.JSON(http.StatusOK, map[string]any{
			"state": b.CurrentState().String(),
			"files": b.InputFiles(),
		})
	}
}

// HandleDispose drops the session batch. Remote jobs keep running.
func HandleDispose(sm *auth.SessionManager, reg *batches.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := sm.BatchID(c.Request())
		if err == nil {
			reg.Remove(id)
		}
		if err := sm.ClearSession(c.Response().Writer, c.Request()); err != nil {
			slog.Warn("failed to clear session", "error", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
