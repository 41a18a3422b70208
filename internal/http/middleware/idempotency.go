package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's idempotency key on POST /command/send.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	idemKeyCtx    = "idempotency.key"
	idemReplayCtx = "idempotency.replay"

	defaultIdemKeyMaxLen = 200
)

// idemKeyPattern accepts RFC 7230 token-ish keys (UUIDs, ULIDs, dotted ids).
var idemKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~:-]+$`)

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := c.GetString(idemKeyCtx)
	return k, k != ""
}

// IsReplay reports whether a live record already exists for the request's
// key. Replays skip the rate limiter.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(idemReplayCtx)
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	Scope  string // store namespace, e.g. "command.send"
	MaxLen int    // <= 0 means 200

	// Routes lists the route patterns (c.FullPath()) whose keys belong to
	// Scope. Keys sent to any other route are validated but never looked
	// up, so they cannot mark a request as a replay.
	Routes []string
}

// IdempotencyLookup reports whether a non-expired record exists for
// (scope, key) at now.
type IdempotencyLookup func(ctx context.Context, scope, key string, now time.Time) (bool, error)

// IdempotencyValidator checks the Idempotency-Key header and stashes it for
// handlers. Malformed keys are rejected with 400 on every route. For
// state-changing methods on opts.Routes the lookup marks live keys as
// replays; a failed lookup is logged and the request continues as a first
// attempt, leaving the final decision to the store transaction.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemKeyMaxLen
	}
	scoped := make(map[string]struct{}, len(opts.Routes))
	for _, route := range opts.Routes {
		scoped[route] = struct{}{}
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		switch {
		case key == "":
			c.Next()
			return
		case len(key) > maxLen || !idemKeyPattern.MatchString(key):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(idemKeyCtx, key)

		_, inScope := scoped[c.FullPath()]
		if lookup != nil && inScope && mutates(c.Request.Method) {
			found, err := lookup(c.Request.Context(), opts.Scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Str("scope", opts.Scope).Msg("idempotency lookup failed")
			}
			if found {
				c.Set(idemReplayCtx, true)
			}
		}
		c.Next()
	}
}

func mutates(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
