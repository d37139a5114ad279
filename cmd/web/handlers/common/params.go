package common

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediaportal/cmd/web/auth"
	"thirdcoast.systems/mediaportal/cmd/web/internal/batches"
)

// RequireBatchID extracts the batch id from the session, starting a session
// when the browser has none.
func RequireBatchID(c echo.Context, sm *auth.SessionManager) (string, error) {
	id, err := sm.EnsureBatchID(c.Response().Writer, c.Request())
	if err != nil {
		return "", ErrInternal("failed to start session")
	}
	return id, nil
}

// RequireBatch returns the session's batch, creating it on first use.
func RequireBatch(c echo.Context, sm *auth.SessionManager, reg *batches.Registry) (batches.Batch, string, error) {
	id, err := RequireBatchID(c, sm)
	if err != nil {
		return nil, "", err
	}
	b, err := reg.GetOrCreate(id)
	if errors.Is(err, batches.ErrTooManyBatches) {
		return nil, "", ErrUnavailable(err.Error())
	}
	if err != nil {
		return nil, "", ErrInternal("failed to create encoding batch")
	}
	return b, id, nil
}

// ExistingBatch returns the session's batch without creating one.
func ExistingBatch(c echo.Context, sm *auth.SessionManager, reg *batches.Registry) (batches.Batch, bool) {
	id, err := sm.BatchID(c.Request())
	if err != nil {
		return nil, false
	}
	return reg.Get(id)
}

// QueryInt parses an integer query parameter, returning def when it is
// missing and a 400 error when it is malformed.
func QueryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ErrBadRequest("invalid " + name)
	}
	return n, nil
}
