package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Gin context keys and headers shared by this package.
const (
	requestIDKey    = "requestID"
	loggerKey       = "logger"
	requestIDHeader = "X-Request-ID"

	// maxRequestIDLen bounds client-supplied correlation ids.
	maxRequestIDLen = 128
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestIDFrom returns the correlation id stored by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// LoggerFrom returns the request-scoped zerolog.Logger stored by Logger or
// RedactingLogger. Without one it returns the global logger, tagged with the
// request id when RequestID ran. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	zc := log.With()
	if rid := RequestIDFrom(c); rid != "" {
		zc = zc.Str("request_id", rid)
	}
	l := zc.Logger()
	return &l
}

// routeOf returns the matched route pattern, or the raw path when no route
// matched, so unmatched URLs never become log or metric keys on their own.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// routeEntity names what the :id path parameter identifies on the matched
// route: "device", "command" or "sms". Other routes yield ("", "").
func routeEntity(c *gin.Context) (kind, id string) {
	full := c.FullPath()
	switch {
	case strings.Contains(full, "/device/:id"):
		kind = "device"
	case strings.Contains(full, "/command/:id"):
		kind = "command"
	case strings.Contains(full, "/sms/:id"):
		kind = "sms"
	default:
		return "", ""
	}
	return kind, c.Param("id")
}

// deviceIDFromRoute returns the :id parameter of /device/:id routes, or ""
// for any other route (where :id names a command or an SMS).
func deviceIDFromRoute(c *gin.Context) string {
	if kind, id := routeEntity(c); kind == "device" {
		return id
	}
	return ""
}

// withRouteFields adds the correlation id, method, route and the entity the
// route addresses (device_id, command_id or sms_id) to zc.
func withRouteFields(zc zerolog.Context, c *gin.Context) zerolog.Context {
	zc = zc.
		Str("request_id", RequestIDFrom(c)).
		Str("method", c.Request.Method).
		Str("path", routeOf(c))
	if kind, id := routeEntity(c); id != "" {
		zc = zc.Str(kind+"_id", id)
	}
	return zc
}

// levelFor picks the access-log level for a finished request.
func levelFor(status int, hasErrors bool) zerolog.Level {
	switch {
	case hasErrors || status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// truncate caps s at max bytes, appending an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
