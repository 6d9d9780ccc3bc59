package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanout/internal/platform/correlation"
	apperrors "github.com/pscheid92/fanout/internal/platform/errors"
)

// correlationMiddleware adopts the caller's X-Correlation-ID when usable and
// echoes the effective ID back.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromIncoming(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Router and middleware errors keep their status but share the
			// structured body.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				if err := c.JSON(httpErr.Code, WrapHTTPError(httpErr).ToResponse()); err != nil {
					return fmt.Errorf("failed to write error response: %w", err)
				}
				return nil
			}

			return HandleError(c, err)
		}
	}
}

// clientErrorTypes are logged at info level; they describe the caller, not us.
var clientErrorTypes = map[apperrors.ErrorType]string{
	apperrors.TypeValidation: "Validation error",
	apperrors.TypeNotFound:   "Not found",
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if msg, ok := clientErrorTypes[err.Type]; ok {
		slog.InfoContext(ctx, msg, attrs...)
		return
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}
	if err.Type == apperrors.TypeExternal {
		slog.ErrorContext(ctx, "Registry or delivery backend error", attrs...)
		return
	}
	slog.ErrorContext(ctx, "Internal error", attrs...)
}

func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

// httpErrorTypes classifies router and middleware errors, e.g. the body
// limit on trigger routes. Unlisted codes are internal.
var httpErrorTypes = map[int]apperrors.ErrorType{
	http.StatusBadRequest:            apperrors.TypeValidation,
	http.StatusRequestEntityTooLarge: apperrors.TypeValidation,
	http.StatusUnsupportedMediaType:  apperrors.TypeValidation,
	http.StatusNotFound:              apperrors.TypeNotFound,
	http.StatusMethodNotAllowed:      apperrors.TypeNotFound,
	http.StatusBadGateway:            apperrors.TypeExternal,
	http.StatusServiceUnavailable:    apperrors.TypeExternal,
}

func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := "internal server error"
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	errType, ok := httpErrorTypes[httpErr.Code]
	if !ok {
		errType = apperrors.TypeInternal
	}

	return &apperrors.Error{
		Type:    errType,
		Message: message,
		Cause:   httpErr.Internal,
		Context: map[string]any{"http_status": httpErr.Code},
	}
}
