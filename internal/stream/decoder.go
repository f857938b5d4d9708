// Package stream normalizes the two incremental wire formats used by the
// providers (Ollama NDJSON and OpenAI-style SSE) into one event sequence.
package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Kind tags a stream event.
type Kind int

const (
	KindDelta Kind = iota + 1
	KindDone
	KindProviderError
)

func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindDone:
		return "done"
	case KindProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

// Event is one normalized stream unit.
type Event struct {
	Kind Kind
	// Text is set on delta events.
	Text string
	// Filtered marks a done event caused by the policy sentinel.
	Filtered bool
	// Code and Message are set on provider error events.
	Code    int
	Message string
}

// Protocol selects the wire format.
type Protocol string

const (
	ProtocolNDJSON Protocol = "ndjson"
	ProtocolSSE    Protocol = "sse"
)

// DefaultSentinel marks policy-filtered output.
const DefaultSentinel = "content_filter"

// maxLineSize bounds a single stream line (1 MiB).
const maxLineSize = 1 << 20

// Option configures a Decoder.
type Option func(*Decoder)

// WithSentinel overrides the policy sentinel phrase. An empty phrase turns
// detection off.
func WithSentinel(phrase string) Option {
	return func(d *Decoder) { d.sentinel = bytes.ToLower([]byte(phrase)) }
}

// Decoder yields events from one response body. It is not restartable; once
// it returns io.EOF every later call does the same.
type Decoder struct {
	sc       *bufio.Scanner
	parse    func(line []byte) []Event
	sentinel []byte
	pending  []Event
	finished bool
}

// NewDecoder reads events in protocol p from r.
func NewDecoder(r io.Reader, p Protocol, opts ...Option) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	d := &Decoder{sc: sc, sentinel: []byte(DefaultSentinel)}
	switch p {
	case ProtocolSSE:
		d.parse = parseSSELine
	default:
		d.parse = parseNDJSONLine
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next event. After a done or provider error event the rest
// of the input is ignored and io.EOF is returned. A read failure (including
// an expired request deadline) is returned as a wrapped error.
func (d *Decoder) Next() (Event, error) {
	for len(d.pending) == 0 {
		if d.finished {
			return Event{}, io.EOF
		}
		if err := d.fill(); err != nil {
			return Event{}, err
		}
	}
	ev := d.pending[0]
	d.pending = d.pending[1:]
	return ev, nil
}

// fill reads lines until at least one event is pending or input ends.
func (d *Decoder) fill() error {
	for d.sc.Scan() {
		line := bytes.TrimSpace(d.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if len(d.sentinel) > 0 && bytes.Contains(bytes.ToLower(line), d.sentinel) {
			d.finished = true
			d.pending = append(d.pending, Event{Kind: KindDone, Filtered: true})
			return nil
		}
		evs := d.parse(line)
		if len(evs) == 0 {
			continue
		}
		for _, ev := range evs {
			d.pending = append(d.pending, ev)
			if ev.Kind != KindDelta {
				d.finished = true
				break
			}
		}
		return nil
	}
	d.finished = true
	if err := d.sc.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
