package ai

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"

    "github.com/local/facturador/internal/stream"
)

// DefaultOllamaURL is the local generate endpoint.
const DefaultOllamaURL = "http://localhost:11434/api/generate"

type OllamaClient struct {
    http     *http.Client
    url      string
    sentinel string
}

// OllamaOptions configures the local backend client.
type OllamaOptions struct {
    URL             string
    Sentinel        string
    // DisableSentinel passes stream lines through without sentinel detection.
    DisableSentinel bool
    HTTPClient      *http.Client
}

func NewOllamaClient(opts OllamaOptions) *OllamaClient {
    url := strings.TrimSpace(opts.URL)
    if url == "" { url = DefaultOllamaURL }
    sentinel := opts.Sentinel
    if sentinel == "" { sentinel = stream.DefaultSentinel }
    if opts.DisableSentinel { sentinel = "" }
    hc := opts.HTTPClient
    if hc == nil { hc = &http.Client{} }
    return &OllamaClient{http: hc, url: url, sentinel: sentinel}
}

func (c *OllamaClient) Name() string { return ProviderOllama }

type ollamaOptions struct {
    Temperature float64 `json:"temperature"`
    NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateReq struct {
    Model   string        `json:"model"`
    Prompt  string        `json:"prompt"`
    Stream  bool          `json:"stream"`
    Images  []string      `json:"images,omitempty"`
    Format  string        `json:"format"`
    Options ollamaOptions `json:"options"`
}

type ollamaGenerateResp struct {
    Response  string `json:"response"`
    Done      bool   `json:"done"`
    EvalCount int    `json:"eval_count"`
    Error     string `json:"error"`
}

func (c *OllamaClient) Send(ctx context.Context, req Request) (*Reply, error) {
    payload := ollamaGenerateReq{
        Model:   req.Model,
        Prompt:  req.Prompt,
        Stream:  req.Stream,
        Format:  "json",
        Options: ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
    }
    if req.ImageBase64 != "" {
        payload.Images = []string{req.ImageBase64}
    }

    body, err := json.Marshal(payload)
    if err != nil {
        return nil, fmt.Errorf("marshal ollama request: %w", err)
    }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
    if err != nil {
        return nil, fmt.Errorf("build ollama request: %w", err)
    }
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := c.http.Do(httpReq)
    if err != nil {
        return nil, &TransportError{Provider: c.Name(), Err: err}
    }
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        defer resp.Body.Close()
        return nil, newHTTPError(c.Name(), resp)
    }

    if req.Stream {
        dec := stream.NewDecoder(resp.Body, stream.ProtocolNDJSON, stream.WithSentinel(c.sentinel))
        return &Reply{Stream: dec, Status: resp.StatusCode, body: resp.Body}, nil
    }

    defer resp.Body.Close()
    var r ollamaGenerateResp
    if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
        if ctx.Err() != nil {
            return nil, &TransportError{Provider: c.Name(), Err: err}
        }
        return nil, fmt.Errorf("decode ollama response: %w", err)
    }
    if r.Error != "" {
        return nil, &ProviderError{Provider: c.Name(), Message: r.Error}
    }
    return &Reply{Text: r.Response, Tokens: r.EvalCount, Status: resp.StatusCode}, nil
}
