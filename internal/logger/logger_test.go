package logger

import (
    "bytes"
    "context"
    "encoding/json"
    "path/filepath"
    "sync"
    "testing"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
)

func TestInitWritesJSON(t *testing.T) {
    var buf bytes.Buffer
    err := Init(Options{Level: "debug", File: filepath.Join(t.TempDir(), "logs", "app.log"), Console: &buf})
    if err != nil {
        t.Fatalf("Init: %v", err)
    }
    defer Close()

    log.Info().Str("request_id", "r1").Msg("hello")
    var ev map[string]any
    if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
        t.Fatalf("console output is not JSON: %q", buf.String())
    }
    if ev["service"] != Service || ev["request_id"] != "r1" || ev["message"] != "hello" {
        t.Errorf("event = %v", ev)
    }
}

func TestInitLevel(t *testing.T) {
    var buf bytes.Buffer
    if err := Init(Options{Level: "warn", Console: &buf}); err != nil {
        t.Fatal(err)
    }
    log.Info().Msg("dropped")
    if buf.Len() != 0 {
        t.Errorf("info logged at warn level: %q", buf.String())
    }
}

func TestShipWriterFilters(t *testing.T) {
    var sent []axiom.Event
    w := &shipWriter{send: func(ev axiom.Event) { sent = append(sent, ev) }, min: zerolog.InfoLevel}

    lines := []string{
        `{"level":"debug","message":"noise"}`,
        `{"level":"trace","message":"noise"}`,
        `{"level":"info","message":"kept"}`,
        `not json`,
    }
    for _, l := range lines {
        if n, err := w.Write([]byte(l)); err != nil || n != len(l) {
            t.Fatalf("Write(%q) = %d, %v", l, n, err)
        }
    }
    if len(sent) != 2 {
        t.Fatalf("sent %d events", len(sent))
    }
    for _, ev := range sent {
        if ev["service"] != Service {
            t.Errorf("missing service tag: %v", ev)
        }
        if _, ok := ev[ingest.TimestampField]; !ok {
            t.Errorf("missing timestamp: %v", ev)
        }
    }
    if sent[1]["message"] != "not json" {
        t.Errorf("raw line not forwarded: %v", sent[1])
    }
}

func TestShipperDrainsOnClose(t *testing.T) {
    var (
        mu  sync.Mutex
        got int
    )
    s := newShipper(func(_ context.Context, events []axiom.Event) error {
        mu.Lock()
        got += len(events)
        mu.Unlock()
        return nil
    }, time.Hour)

    for i := 0; i < 5; i++ {
        s.Send(axiom.Event{"n": i})
    }
    s.Close()

    mu.Lock()
    defer mu.Unlock()
    if got != 5 {
        t.Errorf("ingested %d events, want 5", got)
    }
    if s.Dropped() != 0 {
        t.Errorf("dropped = %d", s.Dropped())
    }
}
