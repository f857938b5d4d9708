package dispatcher

import (
	"context"
	"errors"
	"net/http"

	"github.com/local/facturador/internal/ai"
)

// classify maps an attempt error to its Kind. A nil error is KindNone.
func classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var emptyErr *EmptyResponseError
	if errors.As(err, &emptyErr) {
		return KindEmptyOrFiltered
	}

	var transportErr *ai.TransportError
	if errors.As(err, &transportErr) {
		return KindTransport
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}

	switch status := ai.StatusCode(err); {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusPaymentRequired:
		return KindQuota
	case status == http.StatusTooManyRequests:
		return KindRateLimitOrServer
	case status >= 500 && status < 600:
		return KindRateLimitOrServer
	}
	return KindHTTP
}

// outcomeLabel is the metrics result label of one attempt.
func outcomeLabel(kind Kind, err error) string {
	switch kind {
	case KindNone:
		return "success"
	case KindTransport:
		if isTimeoutError(err) {
			return "timeout"
		}
		return "transport"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindRateLimitOrServer:
		if ai.StatusCode(err) == http.StatusTooManyRequests {
			return "rate_limited"
		}
		return "server_error"
	case KindEmptyOrFiltered:
		var emptyErr *EmptyResponseError
		if errors.As(err, &emptyErr) && emptyErr.Filtered {
			return "filtered"
		}
		return "empty"
	}
	return "http_error"
}

// isTimeoutError checks if error is specifically a timeout
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var to interface{ Timeout() bool }
	return errors.As(err, &to) && to.Timeout()
}

// responseBody returns the body of an HTTP failure, if any.
func responseBody(err error) string {
	var httpErr *ai.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Body
	}
	var provErr *ai.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Message
	}
	return ""
}
