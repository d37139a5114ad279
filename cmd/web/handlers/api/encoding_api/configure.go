package encoding_api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediaportal/cmd/web/auth"
	"thirdcoast.systems/mediaportal/cmd/web/handlers/common"
	"thirdcoast.systems/mediaportal/cmd/web/internal/batches"
	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/internal/presets"
)

type configureRequest struct {
	Presets    string `json:"presets" form:"presets"`
	Delimiter  string `json:"delimiter" form:"delimiter"`
	Processor  string `json:"processor" form:"processor"`
	Protection string `json:"protection" form:"protection"`
	Expiration string `json:"expiration" form:"expiration"`
}

// HandleConfigure stores the user's encoding choices on the session batch
// and starts it on the next advance.
func HandleConfigure(sm *auth.SessionManager, reg *batches.Registry, defaultProcessor string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req configureRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid request")
		}

		b, id, err := common.RequireBatch(c, sm, reg)
		if err != nil {
			return err
		}

		delimiter := req.Delimiter
		if delimiter == "" {
			delimiter = ","
		}
		processor := strings.TrimSpace(req.Processor)
		if processor == "" {
			processor = defaultProcessor
		}

		opts := media.BatchOptions{
			Encoders:    presets.ParseList(req.Presets, delimiter),
			ProcessorID: processor,
			Protection:  media.ParseProtectionCode(req.Protection),
			Expiration:  ParseExpiration(strings.TrimSpace(req.Expiration), time.Now()),
		}
		if err := b.Configure(c.Request().Context(), opts); err != nil {
			slog.Warn("failed to configure encoding batch", "batch_id", id, "error", err)
			return common.BatchError(err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"state":      b.CurrentState().String(),
			"encoders":   opts.Encoders,
			"protection": opts.Protection.Description(),
			"expiration": opts.Expiration.String(),
		})
	}
}
