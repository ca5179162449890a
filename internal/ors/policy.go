package ors

import (
	"math"
	"net/http"
	"time"

	"github.com/campusmap/routegate/internal/apperr"
)

// RetryPolicy holds the retry knobs as an explicit policy object so the
// attempt state machine is testable apart from the transport.
type RetryPolicy struct {
	MaxRetries    int
	BackoffFactor float64
}

// Attempts is the total number of tries, retries included.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Backoff returns the sleep before the attempt following attempt (1-based):
// factor × 2^(attempt-1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	factor := math.Max(0, p.BackoffFactor)
	seconds := factor * math.Pow(2, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}

// decision classifies one upstream status: whether the attempt may be
// retried and, once attempts are exhausted (or immediately for
// non-retryable statuses), which error to fail with.
type decision struct {
	retryable bool
	reason    string // failure-counter label
	code      string
	status    int // caller-visible HTTP status
	message   string
}

// decide maps an upstream HTTP status to its decision. Statuses not in the
// table fail immediately as an unexpected upstream status.
func decide(status int) decision {
	switch {
	case status == http.StatusBadRequest:
		return decision{
			reason:  "bad_request",
			code:    apperr.CodeUpstreamBadRequest,
			status:  http.StatusBadRequest,
			message: "invalid parameters in upstream routing request",
		}
	case status == http.StatusUnauthorized:
		// Operator misconfiguration, not a caller error.
		return decision{
			reason:  "unauthorized",
			code:    apperr.CodeUpstreamBadKey,
			status:  http.StatusInternalServerError,
			message: "upstream routing API key is invalid or expired",
		}
	case status == http.StatusForbidden:
		return decision{
			reason:  "forbidden",
			code:    apperr.CodeUpstreamForbidden,
			status:  http.StatusServiceUnavailable,
			message: "upstream routing provider rejected the request (forbidden)",
		}
	case status == http.StatusNotFound:
		return decision{
			reason:  "not_found",
			code:    apperr.CodeRouteNotFound,
			status:  http.StatusNotFound,
			message: "upstream routing provider found no route for the given coordinates",
		}
	case status == http.StatusTooManyRequests:
		return decision{
			retryable: true,
			reason:    "rate_limited",
			code:      apperr.CodeUpstreamRateLimited,
			status:    http.StatusServiceUnavailable,
			message:   "upstream routing provider request limit exceeded",
		}
	case status >= 500 && status < 600:
		return decision{
			retryable: true,
			reason:    "server_error",
			code:      apperr.CodeUpstreamUnavailable,
			status:    http.StatusBadGateway,
			message:   "upstream routing provider is unavailable",
		}
	default:
		return decision{
			reason:  "unexpected_status",
			code:    apperr.CodeUpstreamUnexpected,
			status:  http.StatusBadGateway,
			message: "unexpected status from upstream routing provider",
		}
	}
}
