package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-device-backend/internal/http/middleware"
	"github.com/tbourn/go-device-backend/internal/services"
)

// ErrorResponse is the error envelope every endpoint returns.
//
//	{"request_id": "123e4567-…", "code": "not_found", "message": "device not found"}
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching client reports to server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"device not found"`
}

// requestID prefers the id stored by middleware.RequestID and falls back to
// the response header for stacks that set only the header.
func requestID(c *gin.Context) string {
	if rid := middleware.RequestIDFrom(c); rid != "" {
		return rid
	}
	return c.Writer.Header().Get("X-Request-ID")
}

// fail aborts with the error envelope. 5xx results are logged on the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: requestID(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for callers outside the package (router fallbacks).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// statusOf classifies a service error. Unknown errors are server faults.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, services.ErrDeviceNotFound),
		errors.Is(err, services.ErrCommandNotFound),
		errors.Is(err, services.ErrSMSNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	default:
		return http.StatusInternalServerError, ""
	}
}

// failFromService maps a service error to a response; code names the failed
// operation when the error is not a known sentinel.
func failFromService(c *gin.Context, err error, code string) {
	status, known := statusOf(err)
	if known == "" {
		known = code
	}
	fail(c, status, known, err.Error())
}

// ok writes body as JSON.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
