package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const MsgInternal = "Internal Server Error."

// ErrorResponse is the envelope for every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ErrorHandler renders errors as {"detail": ...}. Messages of 5xx errors are
// replaced by a generic one and the cause is logged instead.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		detail := MsgInternal

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			code = he.Code
			if code < http.StatusInternalServerError || code == http.StatusGatewayTimeout {
				detail = messageOf(he)
			}
		case errors.Is(err, context.DeadlineExceeded):
			code = http.StatusGatewayTimeout
			detail = msgTimeout
		}

		if code >= http.StatusInternalServerError {
			l := zerolog.Ctx(c.Request().Context())
			if l.GetLevel() == zerolog.Disabled {
				l = &logger
			}
			l.Error().Err(err).
				Str("request_id", RequestIDFrom(c)).
				Int("status", code).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, ErrorResponse{Detail: detail})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func messageOf(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprintf("%v", m)
	}
}
