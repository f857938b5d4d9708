// Package progress sequences the phase notifications of one extraction call.
package progress

import (
	"encoding/json"
	"math"
	"sync"
	"time"
)

// Phase of an extraction call.
type Phase string

const (
	PhaseOptimizing Phase = "optimizing"
	PhaseOptimized  Phase = "optimized"
	PhaseSending    Phase = "sending"
	PhaseGenerating Phase = "generating"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)

// Event is one progress notification.
type Event struct {
	Phase        Phase   `json:"phase"`
	Message      string  `json:"message"`
	Elapsed      float64 `json:"elapsed"`
	Tokens       int     `json:"tokens,omitempty"`
	TokensPerSec float64 `json:"tokens_per_sec,omitempty"`
	Model        string  `json:"model,omitempty"`
	Result       any     `json:"result,omitempty"`
}

// MarshalJSON always writes tokens on complete and generating events, even
// when the count is zero.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	out := struct {
		plain
		Tokens *int `json:"tokens,omitempty"`
	}{plain: plain(e)}
	if e.Tokens != 0 || e.Phase == PhaseComplete || e.Phase == PhaseGenerating {
		out.Tokens = &e.Tokens
	}
	return json.Marshal(out)
}

// Terminal reports whether e ends the call.
func (e Event) Terminal() bool { return e.Phase == PhaseComplete || e.Phase == PhaseError }

// Sink receives events. A returned error means the consumer is gone.
type Sink func(Event) error

// DefaultInterval is the minimum spacing of generating events.
const DefaultInterval = 500 * time.Millisecond

// Option configures an Emitter.
type Option func(*Emitter)

// WithInterval sets the generating throttle interval.
func WithInterval(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// Emitter emits the events of one call, in order. Elapsed values never
// decrease and at most one terminal event is sent.
type Emitter struct {
	mu       sync.Mutex
	sink     Sink
	now      func() time.Time
	start    time.Time
	interval time.Duration

	lastElapsed   float64
	lastGenerated time.Duration
	generated     bool
	finished      bool
	err           error
}

// New starts the clock of a call. A nil sink discards every event.
func New(sink Sink, opts ...Option) *Emitter {
	e := &Emitter{sink: sink, now: time.Now, interval: DefaultInterval}
	for _, opt := range opts {
		opt(e)
	}
	e.start = e.now()
	return e
}

// Live reports whether events reach a consumer.
func (e *Emitter) Live() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sink != nil && e.err == nil
}

// Disconnected reports whether the sink has failed.
func (e *Emitter) Disconnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err != nil
}

// Err returns the first sink error.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Elapsed returns the time since the call started.
func (e *Emitter) Elapsed() time.Duration { return e.now().Sub(e.start) }

// Phase emits a non-terminal phase change.
func (e *Emitter) Phase(p Phase, msg string) {
	e.emit(Event{Phase: p, Message: msg}, false)
}

// Generating reports streaming progress. Calls closer together than the
// throttle interval are dropped.
func (e *Emitter) Generating(model string, tokens int) {
	e.mu.Lock()
	since := e.now().Sub(e.start)
	if e.generated && since-e.lastGenerated < e.interval {
		e.mu.Unlock()
		return
	}
	e.generated = true
	e.lastGenerated = since
	e.mu.Unlock()
	e.emit(Event{Phase: PhaseGenerating, Message: "generating", Model: model, Tokens: tokens}, true)
}

// Complete emits the terminal success event carrying result.
func (e *Emitter) Complete(model string, tokens int, result any) {
	e.emit(Event{Phase: PhaseComplete, Message: "complete", Model: model, Tokens: tokens, Result: result}, true)
}

// Fail emits the terminal error event.
func (e *Emitter) Fail(msg string, result any) {
	e.emit(Event{Phase: PhaseError, Message: msg, Result: result}, false)
}

func (e *Emitter) emit(ev Event, withRate bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	if ev.Terminal() {
		e.finished = true
	}

	elapsed := round2(e.now().Sub(e.start).Seconds())
	if elapsed < e.lastElapsed {
		elapsed = e.lastElapsed
	}
	e.lastElapsed = elapsed
	ev.Elapsed = elapsed
	if withRate && ev.Tokens > 0 && elapsed > 0 {
		ev.TokensPerSec = round2(float64(ev.Tokens) / elapsed)
	}

	if e.sink == nil || e.err != nil {
		return
	}
	if err := e.sink(ev); err != nil {
		e.err = err
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
