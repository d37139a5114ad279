package common

import (
	"github.com/labstack/echo/v4"
	"github.com/starfederation/datastar-go/datastar"
)

// NewSSE opens a datastar event stream on the response. Reverse proxies are
// told not to buffer it.
func NewSSE(c echo.Context) *datastar.ServerSentEventGenerator {
	c.Response().Header().Set("X-Accel-Buffering", "no")
	return datastar.NewSSE(c.Response().Writer, c.Request())
}
