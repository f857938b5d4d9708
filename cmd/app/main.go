package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"
    "github.com/spf13/pflag"
    "golang.org/x/sync/errgroup"

    "github.com/local/facturador/internal/ai"
    cfgpkg "github.com/local/facturador/internal/config"
    "github.com/local/facturador/internal/dispatcher"
    "github.com/local/facturador/internal/imagerender"
    logpkg "github.com/local/facturador/internal/logger"
    mpkg "github.com/local/facturador/internal/metrics"
    "github.com/local/facturador/internal/statuscheck"
    web "github.com/local/facturador/internal/web"
)

func main() {
    configPath := pflag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
    port := pflag.Int("port", 0, "HTTP port (overrides config)")
    pflag.Parse()

    // .env is optional
    _ = godotenv.Load()

    cfg, err := cfgpkg.Load(*configPath, os.LookupEnv)
    if err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
    if *port > 0 { cfg.Server.Port = *port }

    // Init logging
    if err := logpkg.Init(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    }); err != nil {
        fmt.Fprintln(os.Stderr, err)
    }
    defer logpkg.Close()
    mpkg.Init()

    imgOpts := imagerender.Options{
        MaxWidth: cfg.Image.MaxWidth,
        Contrast: cfg.Image.Contrast,
        Quality:  cfg.Image.Quality,
        DPI:      imagerender.DefaultOptions().DPI,
    }
    noSentinel := cfg.Extraction.Sentinel == ""
    disp := dispatcher.New(dispatcher.Options{
        Clients: map[string]ai.Client{
            ai.ProviderOllama: ai.NewOllamaClient(ai.OllamaOptions{
                URL:             cfg.Ollama.URL,
                Sentinel:        cfg.Extraction.Sentinel,
                DisableSentinel: noSentinel,
            }),
            ai.ProviderOpenRouter: ai.NewOpenRouterClient(ai.OpenRouterOptions{
                BaseURL:         cfg.OpenRouter.URL,
                Referer:         cfg.OpenRouter.Referer,
                Title:           cfg.OpenRouter.Title,
                Sentinel:        cfg.Extraction.Sentinel,
                DisableSentinel: noSentinel,
            }),
        },
        Backoff:         cfg.OpenRouter.Backoff,
        Sentinel:        cfg.Extraction.Sentinel,
        DisableSentinel: noSentinel,
        Optimizer:       func(data []byte) ([]byte, error) { return imagerender.Optimize(data, imgOpts) },
    })
    checker := statuscheck.New(statuscheck.Options{
        OllamaURL:     cfg.Ollama.URL,
        OpenRouterURL: cfg.OpenRouter.URL,
        OpenRouterKey: cfg.OpenRouter.APIKey,
    })

    mux := http.NewServeMux()
    web.New(cfg, disp, checker).RegisterRoutes(mux)

    // No WriteTimeout: local extractions stream for up to the Ollama timeout.
    srv := &http.Server{
        Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
        Handler:           mux,
        ReadHeaderTimeout: 10 * time.Second,
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        log.Info().
            Int("port", cfg.Server.Port).
            Str("provider", cfg.Extraction.Provider).
            Str("ollama_model", cfg.Ollama.Model).
            Str("openrouter_model", cfg.OpenRouter.Model).
            Strs("fallbacks", cfg.OpenRouter.Fallbacks).
            Msg("HTTP server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            return fmt.Errorf("http server: %w", err)
        }
        return nil
    })
    g.Go(func() error {
        // Graceful shutdown
        <-gctx.Done()
        sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        return srv.Shutdown(sctx)
    })

    if err := g.Wait(); err != nil {
        log.Error().Err(err).Msg("server stopped with error")
        logpkg.Close()
        os.Exit(1)
    }
    log.Info().Msg("shutdown complete")
}
