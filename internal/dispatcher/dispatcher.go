// Package dispatcher runs one extraction request through an ordered list of
// candidate models until one of them produces usable text.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/local/facturador/internal/ai"
	"github.com/local/facturador/internal/repair"
	"github.com/local/facturador/internal/stream"
)

// Attempt timeouts used when a Request leaves Timeout unset.
const (
	DefaultRemoteTimeout = 45 * time.Second
	DefaultLocalTimeout  = 600 * time.Second
	DefaultBackoff       = time.Second
)

// State of an extraction call.
type State int

const (
	StateIdle State = iota
	StateOptimizing
	StateSending
	StateStreaming
	StateRepairing
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOptimizing:
		return "optimizing"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateRepairing:
		return "repairing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Request is one extraction call. It is read-only for the dispatcher.
type Request struct {
	ID          string
	Provider    string // ai.ProviderOllama or ai.ProviderOpenRouter
	Image       []byte
	Prompt      string
	Model       string
	Fallbacks   []string // ignored for the local backend
	APIKey      string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Attempt records one request/response cycle against a single model.
type Attempt struct {
	Index    int
	Model    string
	Streamed bool
	Kind     Kind
	Outcome  string
	Status   int
	Tokens   int
	Duration time.Duration
	Err      error
}

// Result of a call that reached the repair stage, or the partial record of
// one that did not.
type Result struct {
	Repair   repair.Result
	Provider string
	Model    string
	Tokens   int
	Elapsed  time.Duration
	Attempts []Attempt
	State    State
}

// Optimizer prepares the uploaded image before it is sent.
type Optimizer func(data []byte) ([]byte, error)

// Options configures a Dispatcher.
type Options struct {
	Clients   map[string]ai.Client
	Backoff   time.Duration
	Optimizer Optimizer
	Sentinel  string
	// DisableSentinel turns off sentinel detection on model text.
	DisableSentinel bool

	// Sleep waits between attempts; it must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Dispatcher holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	clients   map[string]ai.Client
	backoff   time.Duration
	optimizer Optimizer
	sentinel  string
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		clients:   make(map[string]ai.Client, len(opts.Clients)),
		backoff:   opts.Backoff,
		optimizer: opts.Optimizer,
		sentinel:  strings.ToLower(opts.Sentinel),
		sleep:     opts.Sleep,
		now:       opts.Now,
	}
	for name, c := range opts.Clients {
		d.clients[name] = c
	}
	if d.backoff < 0 {
		d.backoff = 0
	}
	switch {
	case opts.DisableSentinel:
		d.sentinel = ""
	case d.sentinel == "":
		d.sentinel = stream.DefaultSentinel
	}
	if d.sleep == nil {
		d.sleep = sleepCtx
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// BuildCandidates returns primary followed by fallbacks, without blanks or
// duplicates.
func BuildCandidates(primary string, fallbacks []string) []string {
	seen := make(map[string]bool, len(fallbacks)+1)
	out := make([]string, 0, len(fallbacks)+1)
	for _, m := range append([]string{primary}, fallbacks...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
