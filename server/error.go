package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyde-finance/fyde/common/errors"
)

// ErrorResponse is the JSON error payload. Code carries the engine's
// error code so clients can branch without parsing messages.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func statusOf(code errors.Code) int {
	switch code {
	case errors.IllegalArgumentError, errors.InvalidAddressError,
		errors.InsufficientBalanceError, errors.InsufficientPrincipalError:
		return http.StatusBadRequest
	case errors.UnauthorizedError, errors.LockedAccountError:
		return http.StatusForbidden
	case errors.NotFoundError:
		return http.StatusNotFound
	case errors.SlippageExceededError:
		return http.StatusConflict
	case errors.FeatureDisabledError:
		return http.StatusServiceUnavailable
	case errors.TimeoutError:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if he, ok := err.(*echo.HTTPError); ok {
		c.Echo().DefaultHTTPErrorHandler(he, c)
		return
	}
	code := errors.CodeOf(err)
	resp := &ErrorResponse{
		Code:    int(code),
		Message: err.Error(),
	}
	if err := c.JSON(statusOf(code), resp); err != nil {
		c.Logger().Error(err)
	}
}
