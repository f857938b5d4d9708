package statuscheck

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/tidwall/gjson"
    "golang.org/x/sync/errgroup"
)

// Checker reports the readiness of the extraction backends.
type Checker struct {
    httpClient    *http.Client
    ollamaURL     string
    openRouterURL string
    openRouterKey string
}

// Options configures the Checker.
type Options struct {
    HTTPClient *http.Client
    // OllamaURL is the generate endpoint; its host is probed at /api/tags.
    OllamaURL     string
    OpenRouterURL string
    OpenRouterKey string
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Ollama     Status `json:"ollama"`
    OpenRouter Status `json:"openrouter"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    client := opts.HTTPClient
    if client == nil {
        client = &http.Client{Timeout: 5 * time.Second}
    }
    return &Checker{
        httpClient:    client,
        ollamaURL:     strings.TrimSpace(opts.OllamaURL),
        openRouterURL: strings.TrimRight(strings.TrimSpace(opts.OpenRouterURL), "/"),
        openRouterKey: strings.TrimSpace(opts.OpenRouterKey),
    }
}

// Summary probes both backends concurrently.
func (c *Checker) Summary(ctx context.Context) Summary {
    var s Summary
    var g errgroup.Group
    g.Go(func() error { s.Ollama = c.checkOllama(ctx); return nil })
    g.Go(func() error { s.OpenRouter = c.checkOpenRouter(ctx); return nil })
    _ = g.Wait()
    return s
}

func (c *Checker) checkOllama(ctx context.Context) Status {
    if c.ollamaURL == "" {
        return Status{OK: false, Message: "URL not configured"}
    }
    u, err := url.Parse(c.ollamaURL)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    u.Path, u.RawQuery = "/api/tags", ""

    ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
    defer cancel()
    req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
    resp, err := c.httpClient.Do(req)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    defer resp.Body.Close()
    if resp.StatusCode >= 400 {
        return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
    }
    return Status{OK: true, Message: "Running"}
}

func (c *Checker) checkOpenRouter(ctx context.Context) Status {
    if c.openRouterKey == "" {
        return Status{OK: false, Message: "API key missing"}
    }
    base := c.openRouterURL
    if base == "" {
        base = "https://openrouter.ai/api/v1"
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    req, _ := http.NewRequestWithContext(ctx, http.MethodGet, base+"/key", nil)
    req.Header.Set("Authorization", "Bearer "+c.openRouterKey)
    resp, err := c.httpClient.Do(req)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    defer resp.Body.Close()
    switch {
    case resp.StatusCode == http.StatusUnauthorized:
        return Status{OK: false, Message: "Invalid API key"}
    case resp.StatusCode >= 400:
        return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
    }

    body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
    if label := gjson.GetBytes(body, "data.label"); label.Exists() {
        return Status{OK: true, Message: "Available (" + label.String() + ")"}
    }
    return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
