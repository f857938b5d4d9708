// Package logger configures the process-wide zerolog logger used by the
// extraction service.
package logger

import (
    "fmt"
    "io"
    "os"
    "path/filepath"
    "time"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Service tags every event, locally and in Axiom.
const Service = "facturador"

// Options defines logger initialization parameters.
type Options struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool

    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration

    // Console replaces stdout, for tests.
    Console io.Writer
}

var ship *shipper

// Init replaces log.Logger. An unusable Axiom setup is reported on stderr and
// skipped; only a log file that cannot be created fails Init.
func Init(opts Options) error {
    Close()

    var writers []io.Writer
    if opts.File != "" {
        w, err := rotatingFile(opts)
        if err != nil { return err }
        writers = append(writers, w)
    }
    writers = append(writers, consoleWriter(opts))

    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        s, err := newAxiomShipper(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
        if err != nil {
            fmt.Fprintf(os.Stderr, "axiom forwarding disabled: %v\n", err)
        } else {
            ship = s
            writers = append(writers, &shipWriter{send: s.Send, min: zerolog.InfoLevel})
        }
    }

    zerolog.TimeFieldFormat = time.RFC3339
    log.Logger = zerolog.New(io.MultiWriter(writers...)).
        Level(parseLevel(opts.Level)).
        With().Timestamp().Str("service", Service).
        Logger()
    return nil
}

// Close drains pending Axiom events.
func Close() {
    if ship != nil {
        ship.Close()
        ship = nil
    }
}

func rotatingFile(opts Options) (io.Writer, error) {
    if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
        return nil, fmt.Errorf("create log dir: %w", err)
    }
    return &lumberjack.Logger{
        Filename:   opts.File,
        MaxSize:    opts.MaxSizeMB,
        MaxBackups: opts.MaxBackups,
        MaxAge:     opts.MaxAgeDays,
        Compress:   opts.Compress,
    }, nil
}

func consoleWriter(opts Options) io.Writer {
    out := opts.Console
    if out == nil { out = os.Stdout }
    if opts.Pretty { return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"} }
    return out
}

func parseLevel(s string) zerolog.Level {
    lvl, err := zerolog.ParseLevel(s)
    if err != nil || s == "" { return zerolog.InfoLevel }
    return lvl
}
