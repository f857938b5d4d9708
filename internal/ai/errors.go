package ai

import (
    "errors"
    "fmt"
    "io"
    "net/http"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// HTTPError represents a non-2xx status from an AI provider.
type HTTPError struct {
    StatusCode int
    Body       string
    Provider   string
}

func (e *HTTPError) Error() string {
    if e.Body == "" {
        return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.Provider)
    }
    return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Provider, e.Body)
}

// TransportError wraps connection, DNS and timeout failures.
type TransportError struct {
    Provider string
    Err      error
}

func (e *TransportError) Error() string {
    return fmt.Sprintf("%s transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError is an error object returned inside a 2xx body or stream.
type ProviderError struct {
    Provider string
    Code     int
    Message  string
}

func (e *ProviderError) Error() string {
    if e.Code != 0 {
        return fmt.Sprintf("%s error %d: %s", e.Provider, e.Code, e.Message)
    }
    return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// StatusCode returns the HTTP-like status carried by err, or 0.
func StatusCode(err error) int {
    var httpErr *HTTPError
    if errors.As(err, &httpErr) {
        return httpErr.StatusCode
    }
    var provErr *ProviderError
    if errors.As(err, &provErr) {
        return provErr.Code
    }
    return 0
}

func newHTTPError(provider string, resp *http.Response) *HTTPError {
    body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
    return &HTTPError{StatusCode: resp.StatusCode, Body: string(body), Provider: provider}
}
