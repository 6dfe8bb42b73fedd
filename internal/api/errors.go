package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anda-ren/starwhale/pkg/schema"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error *schema.Error `json:"error"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeUnsupportedVersion:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict:
		return http.StatusConflict
	case schema.ErrCodeExecution:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// codeFor maps an HTTP status raised by echo itself to an error code.
func codeFor(status int) string {
	switch status {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return schema.ErrCodeNotFound
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return schema.ErrCodeValidation
	default:
		return schema.ErrCodeExecution
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		se     *schema.Error
		he     *echo.HTTPError
		status int
	)
	switch {
	case errors.As(err, &se):
		status = statusFor(se.Code)
	case errors.As(err, &he):
		status = he.Code
		se = schema.NewError(codeFor(he.Code), fmt.Sprint(he.Message))
	default:
		status = http.StatusInternalServerError
		se = schema.NewError(schema.ErrCodeExecution, "internal error").WithCause(err)
	}

	if status >= http.StatusInternalServerError {
		s.deps.Logger.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, errorBody{Error: se})
}
