package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RateLimitedError reports an HTTP 429 answer. RetryAfter is the server
// supplied delay before the same call may be attempted again.
type RateLimitedError struct {
	Operation  string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("dashboard: %s: rate limited, retry after %v", e.Operation, e.RetryAfter)
}

// APIError is a non-2xx answer other than 429. Errors holds the messages
// from the response body.
type APIError struct {
	Operation  string
	StatusCode int
	Errors     []string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("dashboard: %s: HTTP %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("dashboard: %s: HTTP %d: %s", e.Operation, e.StatusCode, strings.Join(e.Errors, "; "))
}

// IsRateLimited reports whether err carries a *RateLimitedError
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsAPIError reports whether err carries an *APIError
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsNotFound reports whether err is an API 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
