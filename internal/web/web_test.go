package web

import (
    "bufio"
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "image"
    "image/png"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/local/facturador/internal/ai"
    "github.com/local/facturador/internal/config"
    "github.com/local/facturador/internal/dispatcher"
    "github.com/local/facturador/internal/progress"
    "github.com/local/facturador/internal/repair"
    "github.com/local/facturador/internal/statuscheck"
)

type fakeExtractor struct {
    got dispatcher.Request
    run func(em *progress.Emitter) (dispatcher.Result, error)
}

func (f *fakeExtractor) Extract(_ context.Context, req dispatcher.Request, em *progress.Emitter) (dispatcher.Result, error) {
    f.got = req
    if em == nil { em = progress.New(nil) }
    return f.run(em)
}

func succeed(doc string) func(em *progress.Emitter) (dispatcher.Result, error) {
    return func(em *progress.Emitter) (dispatcher.Result, error) {
        res := dispatcher.Result{Repair: repair.Repair(doc), Model: "m1"}
        em.Phase(progress.PhaseSending, "sending")
        em.Complete("m1", 2, res.Repair)
        return res, nil
    }
}

func failWith(err error) func(em *progress.Emitter) (dispatcher.Result, error) {
    return func(em *progress.Emitter) (dispatcher.Result, error) {
        em.Fail(err.Error(), nil)
        return dispatcher.Result{}, err
    }
}

func pngUpload(t *testing.T) []byte {
    t.Helper()
    var buf bytes.Buffer
    if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil { t.Fatal(err) }
    return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
    t.Helper()
    var b bytes.Buffer
    mw := multipart.NewWriter(&b)
    if data != nil {
        fw, err := mw.CreateFormFile("file", filename)
        if err != nil { t.Fatal(err) }
        _, _ = fw.Write(data)
    }
    for k, v := range fields { _ = mw.WriteField(k, v) }
    _ = mw.Close()
    return &b, mw.FormDataContentType()
}

func newServer(t *testing.T, fx *fakeExtractor) *httptest.Server {
    t.Helper()
    cfg := config.Defaults()
    cfg.OpenRouter.APIKey = "sk"
    cfg.OpenRouter.Fallbacks = []string{"f1"}
    mux := http.NewServeMux()
    New(cfg, fx, fakeStatus{}).RegisterRoutes(mux)
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    return srv
}

type fakeStatus struct{}

func (fakeStatus) Summary(context.Context) statuscheck.Summary {
    return statuscheck.Summary{Ollama: statuscheck.Status{OK: true, Message: "Running"}}
}

func post(t *testing.T, srv *httptest.Server, path string, body *bytes.Buffer, ctype string) *http.Response {
    t.Helper()
    resp, err := http.Post(srv.URL+path, ctype, body)
    if err != nil { t.Fatal(err) }
    t.Cleanup(func() { resp.Body.Close() })
    return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
    t.Helper()
    var m map[string]any
    if err := json.NewDecoder(resp.Body).Decode(&m); err != nil { t.Fatalf("decode: %v", err) }
    return m
}

func TestProcessReturnsDocument(t *testing.T) {
    fx := &fakeExtractor{run: succeed(`{"total_final": 300}`)}
    srv := newServer(t, fx)

    body, ctype := multipartBody(t, "factura.png", pngUpload(t), map[string]string{"provider": "openrouter", "model": "custom/vl"})
    resp := post(t, srv, "/process", body, ctype)
    if resp.StatusCode != http.StatusOK {
        t.Fatalf("status = %d", resp.StatusCode)
    }
    if m := decode(t, resp); m["total_final"] != 300.0 {
        t.Errorf("body = %v", m)
    }
    if resp.Header.Get("X-Request-ID") == "" || resp.Header.Get("X-Model") != "m1" {
        t.Errorf("headers = %v", resp.Header)
    }
    if fx.got.Provider != ai.ProviderOpenRouter || fx.got.Model != "custom/vl" || fx.got.APIKey != "sk" || len(fx.got.Fallbacks) != 1 {
        t.Errorf("request = %+v", fx.got)
    }
}

func TestProcessMalformedIsOK(t *testing.T) {
    srv := newServer(t, &fakeExtractor{run: succeed("no json here")})
    body, ctype := multipartBody(t, "f.png", pngUpload(t), nil)
    resp := post(t, srv, "/process", body, ctype)
    if resp.StatusCode != http.StatusOK {
        t.Fatalf("status = %d", resp.StatusCode)
    }
    m := decode(t, resp)
    if m["raw_text"] != "no json here" || m["error"] == nil {
        t.Errorf("failure object = %v", m)
    }
}

func TestProcessValidation(t *testing.T) {
    fx := &fakeExtractor{run: succeed(`{}`)}
    srv := newServer(t, fx)
    tests := []struct {
        name   string
        file   string
        data   []byte
        fields map[string]string
        code   int
    }{
        {"missing file", "", nil, nil, http.StatusBadRequest},
        {"empty filename", "", pngUpload(t), nil, http.StatusBadRequest},
        {"unsupported", "notes.txt", []byte("plain words"), nil, http.StatusUnsupportedMediaType},
        {"unknown provider", "f.png", pngUpload(t), map[string]string{"provider": "gemini"}, http.StatusBadRequest},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            body, ctype := multipartBody(t, tt.file, tt.data, tt.fields)
            resp := post(t, srv, "/process", body, ctype)
            if resp.StatusCode != tt.code {
                t.Errorf("status = %d, want %d", resp.StatusCode, tt.code)
            }
            if m := decode(t, resp); m["error"] == nil {
                t.Errorf("missing error message: %v", m)
            }
        })
    }
}

func TestProcessErrorMapping(t *testing.T) {
    transport := &ai.TransportError{Provider: ai.ProviderOllama, Err: errors.New("connection refused")}
    tests := []struct {
        name     string
        provider string
        err      error
        code     int
    }{
        {"auth", "openrouter", &dispatcher.FatalError{Kind: dispatcher.KindAuth, Status: 401}, http.StatusUnauthorized},
        {"quota", "openrouter", &dispatcher.FatalError{Kind: dispatcher.KindQuota, Status: 402}, http.StatusPaymentRequired},
        {"exhausted", "openrouter", &dispatcher.ExhaustedError{Attempts: []dispatcher.Attempt{{Kind: dispatcher.KindRateLimitOrServer}}}, http.StatusBadGateway},
        {"local down", "ollama", &dispatcher.ExhaustedError{Attempts: []dispatcher.Attempt{{Kind: dispatcher.KindTransport, Err: transport}}}, http.StatusServiceUnavailable},
        {"local http", "ollama", &dispatcher.ExhaustedError{Attempts: []dispatcher.Attempt{{Kind: dispatcher.KindHTTP}}}, http.StatusBadGateway},
        {"optimize", "ollama", dispatcher.ErrOptimize, http.StatusUnprocessableEntity},
        {"other", "ollama", errors.New("boom"), http.StatusInternalServerError},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            srv := newServer(t, &fakeExtractor{run: failWith(tt.err)})
            body, ctype := multipartBody(t, "f.png", pngUpload(t), map[string]string{"provider": tt.provider})
            resp := post(t, srv, "/process", body, ctype)
            if resp.StatusCode != tt.code {
                t.Errorf("status = %d, want %d", resp.StatusCode, tt.code)
            }
        })
    }
}

func TestProcessStream(t *testing.T) {
    srv := newServer(t, &fakeExtractor{run: succeed(`{"a":1}`)})
    body, ctype := multipartBody(t, "f.png", pngUpload(t), nil)
    resp := post(t, srv, "/process_stream", body, ctype)
    if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
        t.Fatalf("content type = %q", ct)
    }

    var events []map[string]any
    sc := bufio.NewScanner(resp.Body)
    for sc.Scan() {
        var ev map[string]any
        if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
            t.Fatalf("line %q: %v", sc.Text(), err)
        }
        events = append(events, ev)
    }
    if len(events) != 2 || events[0]["phase"] != "sending" || events[1]["phase"] != "complete" {
        t.Fatalf("events = %v", events)
    }
    result, _ := events[1]["result"].(map[string]any)
    if result["a"] != 1.0 {
        t.Errorf("result = %v", events[1]["result"])
    }
}

func TestHealthAndStatus(t *testing.T) {
    srv := newServer(t, &fakeExtractor{})
    resp, err := http.Get(srv.URL + "/health")
    if err != nil { t.Fatal(err) }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        t.Errorf("health = %d", resp.StatusCode)
    }

    resp2, err := http.Get(srv.URL + "/status")
    if err != nil { t.Fatal(err) }
    defer resp2.Body.Close()
    m := decode(t, resp2)
    if ol, _ := m["ollama"].(map[string]any); ol["ok"] != true {
        t.Errorf("status = %v", m)
    }
}

func TestUnknownPathIs404(t *testing.T) {
    srv := newServer(t, &fakeExtractor{})
    resp, err := http.Get(srv.URL + "/nope")
    if err != nil { t.Fatal(err) }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusNotFound {
        t.Errorf("status = %d", resp.StatusCode)
    }
    if !strings.Contains(resp.Header.Get("Content-Type"), "text/plain") {
        t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
    }
}
