// Error codes carried in ErrorResponse.Code. Generic codes mirror the HTTP
// status; operation codes (register_failed, enqueue_failed, ...) name the
// store call that failed with a 5xx.

package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited" // written by middleware.RateLimiter
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeRegisterFailed = "register_failed"
	ErrCodeEnqueueFailed  = "enqueue_failed"
	ErrCodePollFailed     = "poll_failed"
	ErrCodeDeleteFailed   = "delete_failed"
	ErrCodeCreateFailed   = "create_failed"
	ErrCodeListFailed     = "list_failed"
	ErrCodeSettingsFailed = "settings_failed"
)
