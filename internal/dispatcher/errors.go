package dispatcher

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of one provider attempt.
type Kind int

const (
	KindNone Kind = iota
	KindTransport
	KindAuth
	KindQuota
	KindRateLimitOrServer
	KindEmptyOrFiltered
	KindHTTP
	KindMalformedOutput
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindRateLimitOrServer:
		return "rate_limit_or_server"
	case KindEmptyOrFiltered:
		return "empty_or_filtered"
	case KindHTTP:
		return "http"
	case KindMalformedOutput:
		return "malformed_output"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Fatal reports whether k aborts the whole request.
func (k Kind) Fatal() bool { return k == KindAuth || k == KindQuota }

var (
	// ErrNoProviderResponded is matched by every *ExhaustedError.
	ErrNoProviderResponded = errors.New("no provider responded")
	// ErrDisconnected is returned when the progress consumer went away.
	ErrDisconnected = errors.New("progress consumer disconnected")
	// ErrNoCandidates is returned when no model is configured.
	ErrNoCandidates = errors.New("no candidate model configured")
	// ErrUnknownProvider is returned for a provider kind with no client.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrOptimize wraps image preprocessing failures.
	ErrOptimize = errors.New("image optimization failed")
)

// FatalError aborts the request; retrying other candidates cannot help.
type FatalError struct {
	Kind     Kind
	Provider string
	Model    string
	Status   int
	Body     string
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s failure from %s/%s (HTTP %d): %v", e.Kind, e.Provider, e.Model, e.Status, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ExhaustedError means every candidate was tried without success.
type ExhaustedError struct {
	Provider string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	last := e.Last()
	if last.Err == nil {
		return fmt.Sprintf("%s: %s after %d attempts", ErrNoProviderResponded, e.Provider, len(e.Attempts))
	}
	return fmt.Sprintf("%s: %s after %d attempts, last %s: %v", ErrNoProviderResponded, e.Provider, len(e.Attempts), last.Model, last.Err)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrNoProviderResponded }

func (e *ExhaustedError) Unwrap() error { return e.Last().Err }

// Last returns the final attempt, or the zero Attempt.
func (e *ExhaustedError) Last() Attempt {
	if len(e.Attempts) == 0 {
		return Attempt{}
	}
	return e.Attempts[len(e.Attempts)-1]
}

// ConnectionFailed reports whether the last attempt never reached the backend.
func (e *ExhaustedError) ConnectionFailed() bool { return e.Last().Kind == KindTransport }

// EmptyResponseError is recorded when a 2xx reply had no usable text.
type EmptyResponseError struct {
	Provider string
	Model    string
	Filtered bool
}

func (e *EmptyResponseError) Error() string {
	if e.Filtered {
		return fmt.Sprintf("%s/%s: response filtered by provider policy", e.Provider, e.Model)
	}
	return fmt.Sprintf("%s/%s: empty response", e.Provider, e.Model)
}
