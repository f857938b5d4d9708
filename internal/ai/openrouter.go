package ai

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strconv"
    "strings"

    "github.com/local/facturador/internal/stream"
)

// DefaultOpenRouterURL is the OpenAI-compatible gateway base URL.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

type OpenRouterClient struct{
    http     *http.Client
    baseURL  string
    referer  string
    title    string
    sentinel string
}

// OpenRouterOptions configures the remote gateway client.
type OpenRouterOptions struct {
    BaseURL         string
    Referer         string // HTTP-Referer attribution header
    Title           string // X-Title attribution header
    Sentinel        string
    // DisableSentinel passes stream lines through without sentinel detection.
    DisableSentinel bool
    HTTPClient      *http.Client
}

func NewOpenRouterClient(opts OpenRouterOptions) *OpenRouterClient {
    base := strings.TrimRight(opts.BaseURL, "/")
    if base == "" { base = DefaultOpenRouterURL }
    sentinel := opts.Sentinel
    if sentinel == "" { sentinel = stream.DefaultSentinel }
    if opts.DisableSentinel { sentinel = "" }
    hc := opts.HTTPClient
    if hc == nil { hc = &http.Client{} }
    return &OpenRouterClient{http: hc, baseURL: base, referer: opts.Referer, title: opts.Title, sentinel: sentinel}
}

func (c *OpenRouterClient) Name() string { return ProviderOpenRouter }

type openRouterMessage struct {
    Role    string                   `json:"role"`
    Content []map[string]interface{} `json:"content"`
}

type openRouterChatReq struct {
    Model       string              `json:"model"`
    Messages    []openRouterMessage `json:"messages"`
    Temperature float64             `json:"temperature"`
    MaxTokens   int                 `json:"max_tokens,omitempty"`
    Stream      bool                `json:"stream"`
}

type openRouterChatResp struct {
    Choices []struct {
        Message struct {
            Content string `json:"content"`
        } `json:"message"`
        Text string `json:"text"`
    } `json:"choices"`
    Usage struct {
        PromptTokens     int `json:"prompt_tokens"`
        CompletionTokens int `json:"completion_tokens"`
    } `json:"usage"`
    Error *struct {
        Code    json.RawMessage `json:"code"`
        Message string          `json:"message"`
    } `json:"error"`
}

func (c *OpenRouterClient) Send(ctx context.Context, req Request) (*Reply, error) {
    if strings.TrimSpace(req.APIKey) == "" {
        return nil, &HTTPError{StatusCode: http.StatusUnauthorized, Body: "missing OpenRouter API key", Provider: c.Name()}
    }

    // User message: prompt text plus the invoice image (vision mode)
    userContent := []map[string]interface{}{
        {"type": "text", "text": req.Prompt},
    }
    if req.ImageBase64 != "" {
        userContent = append(userContent, map[string]interface{}{
            "type":      "image_url",
            "image_url": map[string]string{"url": "data:image/jpeg;base64," + req.ImageBase64},
        })
    }

    payload := openRouterChatReq{
        Model:       req.Model,
        Messages:    []openRouterMessage{{Role: "user", Content: userContent}},
        Temperature: req.Temperature,
        MaxTokens:   req.MaxTokens,
        Stream:      req.Stream,
    }

    body, err := json.Marshal(payload)
    if err != nil {
        return nil, fmt.Errorf("marshal openrouter request: %w", err)
    }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
    if err != nil {
        return nil, fmt.Errorf("build openrouter request: %w", err)
    }
    httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
    httpReq.Header.Set("Content-Type", "application/json")
    if c.referer != "" { httpReq.Header.Set("HTTP-Referer", c.referer) }
    if c.title != "" { httpReq.Header.Set("X-Title", c.title) }
    if req.Stream { httpReq.Header.Set("Accept", "text/event-stream") }

    resp, err := c.http.Do(httpReq)
    if err != nil {
        return nil, &TransportError{Provider: c.Name(), Err: err}
    }

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        defer resp.Body.Close()
        return nil, newHTTPError(c.Name(), resp)
    }

    if req.Stream {
        dec := stream.NewDecoder(resp.Body, stream.ProtocolSSE, stream.WithSentinel(c.sentinel))
        return &Reply{Stream: dec, Status: resp.StatusCode, body: resp.Body}, nil
    }

    defer resp.Body.Close()
    var r openRouterChatResp
    if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
        if ctx.Err() != nil {
            return nil, &TransportError{Provider: c.Name(), Err: err}
        }
        return nil, fmt.Errorf("decode openrouter response: %w", err)
    }
    if r.Error != nil {
        return nil, &ProviderError{Provider: c.Name(), Code: parseCode(r.Error.Code), Message: r.Error.Message}
    }
    if len(r.Choices) == 0 {
        return &Reply{Status: resp.StatusCode}, nil
    }
    text := r.Choices[0].Message.Content
    if text == "" { text = r.Choices[0].Text }

    return &Reply{
        Text:   text,
        Tokens: r.Usage.CompletionTokens,
        Status: resp.StatusCode,
    }, nil
}

// parseCode accepts numeric or quoted numeric error codes.
func parseCode(raw json.RawMessage) int {
    n, err := strconv.Atoi(strings.Trim(string(raw), `"`))
    if err != nil { return 0 }
    return n
}
