package ai

import (
    "context"
    "io"

    "github.com/local/facturador/internal/stream"
)

// Provider kinds.
const (
    ProviderOllama     = "ollama"
    ProviderOpenRouter = "openrouter"
)

// Request represents one extraction call against a single model.
type Request struct {
    Model       string
    Prompt      string
    ImageBase64 string // JPEG, base64 encoded
    APIKey      string
    Temperature float64
    MaxTokens   int
    Stream      bool
}

// Reply is either buffered text or an open event stream. Close must be called
// in both cases.
type Reply struct {
    Text   string
    Tokens int
    Stream *stream.Decoder
    Status int

    body io.Closer
}

// Streaming reports whether the reply carries a stream decoder.
func (r *Reply) Streaming() bool { return r.Stream != nil }

// Close releases the response body; for streams the unread rest is dropped.
func (r *Reply) Close() error {
    if r == nil || r.body == nil {
        return nil
    }
    err := r.body.Close()
    r.body = nil
    return err
}

// Client interface for providers like Ollama and OpenRouter.
type Client interface {
    Name() string
    Send(ctx context.Context, req Request) (*Reply, error)
}
