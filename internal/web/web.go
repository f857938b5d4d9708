package web

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "path/filepath"
    "strings"

    "github.com/google/uuid"
    "github.com/local/facturador/internal/ai"
    "github.com/local/facturador/internal/config"
    "github.com/local/facturador/internal/dispatcher"
    "github.com/local/facturador/internal/filetype"
    mpkg "github.com/local/facturador/internal/metrics"
    "github.com/local/facturador/internal/progress"
    "github.com/local/facturador/internal/statuscheck"
    "github.com/rs/zerolog/log"
)

// Extractor runs one extraction request.
type Extractor interface {
    Extract(ctx context.Context, req dispatcher.Request, em *progress.Emitter) (dispatcher.Result, error)
}

// StatusReporter summarizes backend readiness.
type StatusReporter interface {
    Summary(ctx context.Context) statuscheck.Summary
}

type Web struct {
    cfg       config.Config
    extractor Extractor
    status    StatusReporter
    detector  *filetype.Detector
}

func New(cfg config.Config, extractor Extractor, status StatusReporter) *Web {
    return &Web{cfg: cfg, extractor: extractor, status: status, detector: filetype.New()}
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/", w.handleIndex)
    mux.HandleFunc("/process", w.handleProcess)
    mux.HandleFunc("/process_stream", w.handleProcessStream)
    mux.HandleFunc("/health", w.handleHealth)
    mux.HandleFunc("/status", w.handleStatus)
    mux.Handle("/metrics", mpkg.Handler())
}

func (w *Web) handleIndex(wr http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/" { http.NotFound(wr, r); return }
    if r.Method != http.MethodGet { wr.WriteHeader(http.StatusMethodNotAllowed); return }
    http.ServeFile(wr, r, filepath.Join(w.cfg.Server.StaticDir, "index.html"))
}

func (w *Web) handleHealth(wr http.ResponseWriter, r *http.Request) {
    writeJSON(wr, http.StatusOK, map[string]string{"status": "ok"})
}

func (w *Web) handleStatus(wr http.ResponseWriter, r *http.Request) {
    if w.status == nil { writeError(wr, http.StatusServiceUnavailable, "status checks disabled"); return }
    writeJSON(wr, http.StatusOK, w.status.Summary(r.Context()))
}

// handleProcess answers with the extracted document, or the failure object
// when the model output could not be parsed.
func (w *Web) handleProcess(wr http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { wr.WriteHeader(http.StatusMethodNotAllowed); return }
    req, code, err := w.parseUpload(wr, r)
    if err != nil { writeError(wr, code, err.Error()); return }

    wr.Header().Set("X-Request-ID", req.ID)
    res, err := w.extractor.Extract(r.Context(), req, nil)
    if err != nil {
        writeError(wr, statusFor(req.Provider, err), errorMessage(req.Provider, err))
        return
    }
    if res.Model != "" { wr.Header().Set("X-Model", res.Model) }
    writeJSON(wr, http.StatusOK, res.Repair)
}

// handleProcessStream answers with one JSON progress event per line, ending
// with a complete or error event.
func (w *Web) handleProcessStream(wr http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { wr.WriteHeader(http.StatusMethodNotAllowed); return }
    req, code, err := w.parseUpload(wr, r)
    if err != nil { writeError(wr, code, err.Error()); return }

    flusher, _ := wr.(http.Flusher)
    wr.Header().Set("Content-Type", "application/x-ndjson")
    wr.Header().Set("Cache-Control", "no-cache")
    wr.Header().Set("X-Accel-Buffering", "no")
    wr.Header().Set("X-Request-ID", req.ID)
    wr.WriteHeader(http.StatusOK)

    enc := json.NewEncoder(wr)
    sink := func(ev progress.Event) error {
        if err := r.Context().Err(); err != nil { return err }
        if err := enc.Encode(ev); err != nil { return err }
        if flusher != nil { flusher.Flush() }
        return nil
    }
    em := progress.New(sink, progress.WithInterval(w.cfg.Extraction.ProgressInterval))

    if _, err := w.extractor.Extract(r.Context(), req, em); err != nil {
        log.Warn().Str("request_id", req.ID).Err(err).Bool("disconnected", em.Disconnected()).Msg("streamed extraction ended with error")
    }
}

// parseUpload validates the multipart form and builds the extraction request.
func (w *Web) parseUpload(wr http.ResponseWriter, r *http.Request) (dispatcher.Request, int, error) {
    maxBytes := int64(w.cfg.Server.MaxUploadMB) << 20
    if maxBytes <= 0 { maxBytes = 20 << 20 }
    r.Body = http.MaxBytesReader(wr, r.Body, maxBytes)
    if err := r.ParseMultipartForm(maxBytes); err != nil {
        var tooLarge *http.MaxBytesError
        if errors.As(err, &tooLarge) {
            return dispatcher.Request{}, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d MB", w.cfg.Server.MaxUploadMB)
        }
        return dispatcher.Request{}, http.StatusBadRequest, errors.New("invalid multipart form")
    }

    file, hdr, err := r.FormFile("file")
    if err != nil { return dispatcher.Request{}, http.StatusBadRequest, errors.New("no file in request") }
    defer file.Close()
    if hdr.Filename == "" { return dispatcher.Request{}, http.StatusBadRequest, errors.New("no file selected") }

    data, err := io.ReadAll(file)
    if err != nil { return dispatcher.Request{}, http.StatusBadRequest, errors.New("could not read upload") }
    info, err := w.detector.Detect(data)
    if err != nil { return dispatcher.Request{}, http.StatusBadRequest, err }
    if !info.Supported {
        return dispatcher.Request{}, http.StatusUnsupportedMediaType, errors.New(info.Description)
    }

    id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
    if id == "" { id = uuid.NewString() }

    provider := strings.ToLower(strings.TrimSpace(r.FormValue("provider")))
    if provider == "" { provider = w.cfg.Extraction.Provider }
    req := dispatcher.Request{
        ID:          id,
        Provider:    provider,
        Image:       data,
        Prompt:      w.cfg.Extraction.Prompt,
        MaxTokens:   w.cfg.Extraction.MaxTokens,
        Temperature: w.cfg.Extraction.Temperature,
    }
    switch provider {
    case ai.ProviderOllama:
        req.Model = w.cfg.Ollama.Model
        req.Timeout = w.cfg.Ollama.Timeout
    case ai.ProviderOpenRouter:
        req.Model = w.cfg.OpenRouter.Model
        req.Fallbacks = w.cfg.OpenRouter.Fallbacks
        req.Timeout = w.cfg.OpenRouter.Timeout
        req.APIKey = w.cfg.OpenRouter.APIKey
    default:
        return dispatcher.Request{}, http.StatusBadRequest, fmt.Errorf("unknown provider %q", provider)
    }
    if m := strings.TrimSpace(r.FormValue("model")); m != "" { req.Model = m }

    log.Info().
        Str("request_id", id).
        Str("provider", provider).
        Str("model", req.Model).
        Str("file", hdr.Filename).
        Str("mime", info.MIMEType).
        Int("size", len(data)).
        Msg("extraction request received")
    return req, 0, nil
}

// statusFor maps extraction errors to HTTP status codes.
func statusFor(provider string, err error) int {
    var fatal *dispatcher.FatalError
    if errors.As(err, &fatal) {
        switch fatal.Kind {
        case dispatcher.KindAuth:
            return http.StatusUnauthorized
        case dispatcher.KindQuota:
            return http.StatusPaymentRequired
        }
    }
    var exhausted *dispatcher.ExhaustedError
    if errors.As(err, &exhausted) {
        if provider == ai.ProviderOllama && exhausted.ConnectionFailed() {
            return http.StatusServiceUnavailable
        }
        return http.StatusBadGateway
    }
    switch {
    case errors.Is(err, dispatcher.ErrOptimize):
        return http.StatusUnprocessableEntity
    case errors.Is(err, dispatcher.ErrUnknownProvider), errors.Is(err, dispatcher.ErrNoCandidates):
        return http.StatusBadRequest
    }
    return http.StatusInternalServerError
}

const ollamaUnreachable = "Could not connect to Ollama. Is the server running?"

func errorMessage(provider string, err error) string {
    var exhausted *dispatcher.ExhaustedError
    if provider == ai.ProviderOllama && errors.As(err, &exhausted) && exhausted.ConnectionFailed() {
        return ollamaUnreachable
    }
    var fatal *dispatcher.FatalError
    if errors.As(err, &fatal) {
        switch fatal.Kind {
        case dispatcher.KindAuth:
            return "OpenRouter rejected the API key"
        case dispatcher.KindQuota:
            return "OpenRouter account has insufficient credits"
        }
    }
    return err.Error()
}

func writeJSON(wr http.ResponseWriter, code int, v any) {
    wr.Header().Set("Content-Type", "application/json")
    wr.WriteHeader(code)
    _ = json.NewEncoder(wr).Encode(v)
}

func writeError(wr http.ResponseWriter, code int, msg string) {
    writeJSON(wr, code, map[string]string{"error": msg})
}
