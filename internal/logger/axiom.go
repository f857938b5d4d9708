package logger

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "sync"
    "sync/atomic"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
)

const (
    shipQueue     = 1000
    shipBatch     = 200
    ingestTimeout = 15 * time.Second
)

// shipWriter turns zerolog JSON lines into Axiom events at or above min.
type shipWriter struct {
    send func(axiom.Event)
    min  zerolog.Level
}

func (w *shipWriter) Write(p []byte) (int, error) {
    var ev map[string]any
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = map[string]any{zerolog.LevelFieldName: zerolog.InfoLevel.String(), zerolog.MessageFieldName: string(p)}
    }
    if s, ok := ev[zerolog.LevelFieldName].(string); ok {
        if lvl, err := zerolog.ParseLevel(s); err == nil && lvl < w.min { return len(p), nil }
    }
    ev["service"] = Service
    if _, ok := ev[ingest.TimestampField]; !ok { ev[ingest.TimestampField] = time.Now() }
    w.send(axiom.Event(ev))
    return len(p), nil
}

type ingestFunc func(ctx context.Context, events []axiom.Event) error

// shipper batches events in the background. Send never blocks: events that
// do not fit the queue are counted and dropped.
type shipper struct {
    ingest  ingestFunc
    queue   chan axiom.Event
    dropped atomic.Int64
    failed  sync.Once
    stop    context.CancelFunc
    done    chan struct{}
}

func newAxiomShipper(token, orgID, dataset string, every time.Duration) (*shipper, error) {
    if dataset == "" { dataset = "dev_" + Service }
    opts := []axiom.Option{axiom.SetToken(token)}
    if orgID != "" { opts = append(opts, axiom.SetOrganizationID(orgID)) }
    c, err := axiom.NewClient(opts...)
    if err != nil { return nil, err }
    return newShipper(func(ctx context.Context, events []axiom.Event) error {
        _, err := c.IngestEvents(ctx, dataset, events)
        return err
    }, every), nil
}

func newShipper(ingest ingestFunc, every time.Duration) *shipper {
    if every <= 0 { every = 10 * time.Second }
    ctx, cancel := context.WithCancel(context.Background())
    s := &shipper{ingest: ingest, queue: make(chan axiom.Event, shipQueue), stop: cancel, done: make(chan struct{})}
    go s.run(ctx, every)
    return s
}

func (s *shipper) Send(ev axiom.Event) {
    select {
    case s.queue <- ev:
    default:
        s.dropped.Add(1)
    }
}

// Dropped returns how many events did not fit the queue.
func (s *shipper) Dropped() int64 { return s.dropped.Load() }

func (s *shipper) run(ctx context.Context, every time.Duration) {
    defer close(s.done)
    tick := time.NewTicker(every)
    defer tick.Stop()

    batch := make([]axiom.Event, 0, shipBatch)
    flush := func() {
        if len(batch) == 0 { return }
        fctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
        err := s.ingest(fctx, batch)
        cancel()
        if err != nil {
            // reported once
            s.failed.Do(func() { fmt.Fprintf(os.Stderr, "axiom ingest failed: %v\n", err) })
        }
        batch = batch[:0]
    }
    for {
        select {
        case ev := <-s.queue:
            batch = append(batch, ev)
            if len(batch) >= shipBatch { flush() }
        case <-tick.C:
            flush()
        case <-ctx.Done():
            for {
                select {
                case ev := <-s.queue:
                    batch = append(batch, ev)
                    if len(batch) >= shipBatch { flush() }
                default:
                    flush()
                    return
                }
            }
        }
    }
}

// Close flushes queued events and waits for the last ingest.
func (s *shipper) Close() {
    s.stop()
    <-s.done
}
