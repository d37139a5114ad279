package encoding_api

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/starfederation/datastar-go/datastar"

	"thirdcoast.systems/mediaportal/cmd/web/auth"
	"thirdcoast.systems/mediaportal/cmd/web/handlers/common"
	"thirdcoast.systems/mediaportal/cmd/web/internal/batches"
)

const streamTimeout = 30 * time.Minute

func patchSignals(sse *datastar.ServerSentEventGenerator, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sse.PatchSignals(b)
}

// HandleStream advances the session batch on the suggested interval and
// pushes each status as datastar signals. Unit events in between patch the
// state only.
func HandleStream(sm *auth.SessionManager, reg *batches.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		sse := common.NewSSE(c)

		b, ok := common.ExistingBatch(c, sm, reg)
		if !ok {
			_ = patchSignals(sse, newStatusResponse(expiredStatus()))
			return nil
		}

		ctx := c.Request().Context()
		timeout := time.NewTimer(streamTimeout)
		defer timeout.Stop()

		for {
			st := refine(ctx, b, b.Advance(ctx))
			if err := patchSignals(sse, newStatusResponse(st)); err != nil {
				slog.Warn("failed to send SSE patch", "error", err)
				return nil
			}

			wait := time.NewTimer(st.PollInterval)
		waiting:
			for {
				select {
				case <-ctx.Done():
					wait.Stop()
					return nil
				case <-timeout.C:
					wait.Stop()
					slog.Info("SSE connection timeout")
					return nil
				case <-b.Changes():
					b.Sync(ctx)
					if err := patchSignals(sse, map[string]string{"state": b.CurrentState().String()}); err != nil {
						wait.Stop()
						return nil
					}
				case <-wait.C:
					break waiting
				}
			}
		}
	}
}
