package common

import (
	"errors"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediaportal/internal/media"
)

// BatchError maps orchestrator errors onto HTTP errors.
func BatchError(err error) *echo.HTTPError {
	var cfgErr *media.ConfigurationError
	var inputErr *media.InvalidInputError
	switch {
	case errors.As(err, &cfgErr):
		return ErrBadRequest(cfgErr.Error())
	case errors.As(err, &inputErr):
		return ErrBadRequest(inputErr.Error())
	case errors.Is(err, media.ErrInvalidState):
		return ErrConflict("an encoding batch is already running")
	default:
		return ErrInternal("encoding batch failed")
	}
}
