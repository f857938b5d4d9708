package statuscheck

import (
    "context"
    "fmt"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
)

func TestSummary(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/api/tags":
            fmt.Fprint(w, `{"models":[]}`)
        case "/v1/key":
            if r.Header.Get("Authorization") != "Bearer good" {
                w.WriteHeader(http.StatusUnauthorized)
                return
            }
            fmt.Fprint(w, `{"data":{"label":"sk-or-...abc"}}`)
        default:
            http.NotFound(w, r)
        }
    }))
    defer srv.Close()

    s := New(Options{OllamaURL: srv.URL + "/api/generate", OpenRouterURL: srv.URL + "/v1/", OpenRouterKey: "good"}).Summary(context.Background())
    if !s.Ollama.OK || s.Ollama.Message != "Running" {
        t.Errorf("ollama = %+v", s.Ollama)
    }
    if !s.OpenRouter.OK || !strings.Contains(s.OpenRouter.Message, "sk-or-...abc") {
        t.Errorf("openrouter = %+v", s.OpenRouter)
    }

    s = New(Options{OllamaURL: srv.URL, OpenRouterURL: srv.URL + "/v1", OpenRouterKey: "bad"}).Summary(context.Background())
    if s.OpenRouter.OK || s.OpenRouter.Message != "Invalid API key" {
        t.Errorf("openrouter = %+v", s.OpenRouter)
    }
}

func TestSummaryUnconfigured(t *testing.T) {
    s := New(Options{}).Summary(context.Background())
    if s.Ollama.OK || s.OpenRouter.OK || s.OpenRouter.Message != "API key missing" {
        t.Errorf("summary = %+v", s)
    }
}

func TestOllamaDown(t *testing.T) {
    srv := httptest.NewServer(http.NotFoundHandler())
    url := srv.URL
    srv.Close()
    if st := New(Options{OllamaURL: url}).checkOllama(context.Background()); st.OK {
        t.Errorf("status = %+v", st)
    }
}
