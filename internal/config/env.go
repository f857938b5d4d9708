package config

import (
    "strconv"
    "strings"
    "time"
)

// applyEnv overrides cfg with environment variables that are set and non-empty.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
    env := func(key string) string {
        if lookup == nil { return "" }
        v, _ := lookup(key)
        return strings.TrimSpace(v)
    }

    // Logging
    cfg.Logging.Level = getEnv(env, "LOG_LEVEL", cfg.Logging.Level)
    if v := env("LOG_PRETTY"); v != "" {
        cfg.Logging.Pretty = parseBool(v)
    } else if devEnvironment(env("ENVIRONMENT")) {
        cfg.Logging.Pretty = true
    }
    cfg.Logging.File = getEnv(env, "LOG_FILE", cfg.Logging.File)
    cfg.Logging.MaxSizeMB = parseInt(env("LOG_MAX_SIZE_MB"), cfg.Logging.MaxSizeMB)
    cfg.Logging.MaxBackups = parseInt(env("LOG_MAX_BACKUPS"), cfg.Logging.MaxBackups)
    cfg.Logging.MaxAgeDays = parseInt(env("LOG_MAX_AGE_DAYS"), cfg.Logging.MaxAgeDays)
    if v := env("LOG_COMPRESS"); v != "" { cfg.Logging.Compress = parseBool(v) }

    // Axiom
    if v := env("SEND_LOGS_TO_AXIOM"); v != "" { cfg.Axiom.Send = parseBool(v) }
    cfg.Axiom.APIKey = getEnv(env, "AXIOM_API_KEY", cfg.Axiom.APIKey)
    cfg.Axiom.OrgID = getEnv(env, "AXIOM_ORG_ID", cfg.Axiom.OrgID)
    if v := env("AXIOM_DATASET"); v != "" { cfg.Axiom.Dataset = v + "_facturador" }
    cfg.Axiom.FlushInterval = parseDuration(env("AXIOM_FLUSH_INTERVAL"), cfg.Axiom.FlushInterval)

    // Server
    cfg.Server.Port = parseInt(env("PORT"), cfg.Server.Port)
    cfg.Server.StaticDir = getEnv(env, "STATIC_DIR", cfg.Server.StaticDir)
    cfg.Server.MaxUploadMB = parseInt(env("MAX_UPLOAD_MB"), cfg.Server.MaxUploadMB)

    // Extraction
    cfg.Extraction.Provider = strings.ToLower(getEnv(env, "EXTRACTION_PROVIDER", cfg.Extraction.Provider))
    cfg.Extraction.Prompt = getEnv(env, "EXTRACTION_PROMPT", cfg.Extraction.Prompt)
    cfg.Extraction.MaxTokens = parseInt(env("EXTRACTION_MAX_TOKENS"), cfg.Extraction.MaxTokens)
    cfg.Extraction.Temperature = parseFloat(env("EXTRACTION_TEMPERATURE"), cfg.Extraction.Temperature)
    // set but empty disables sentinel detection
    if lookup != nil {
        if v, ok := lookup("EXTRACTION_SENTINEL"); ok { cfg.Extraction.Sentinel = strings.TrimSpace(v) }
    }
    cfg.Extraction.ProgressInterval = parseDuration(env("PROGRESS_INTERVAL"), cfg.Extraction.ProgressInterval)

    // Ollama
    cfg.Ollama.URL = getEnv(env, "OLLAMA_API_URL", cfg.Ollama.URL)
    cfg.Ollama.Model = getEnv(env, "OLLAMA_MODEL", cfg.Ollama.Model)
    cfg.Ollama.Timeout = parseDuration(env("OLLAMA_TIMEOUT"), cfg.Ollama.Timeout)

    // OpenRouter
    cfg.OpenRouter.URL = getEnv(env, "OPENROUTER_API_URL", cfg.OpenRouter.URL)
    cfg.OpenRouter.APIKey = getEnv(env, "OPENROUTER_API_KEY", cfg.OpenRouter.APIKey)
    cfg.OpenRouter.Model = getEnv(env, "OPENROUTER_MODEL", cfg.OpenRouter.Model)
    if v := env("OPENROUTER_FALLBACK_MODELS"); v != "" { cfg.OpenRouter.Fallbacks = splitList(v) }
    cfg.OpenRouter.Timeout = parseDuration(env("OPENROUTER_TIMEOUT"), cfg.OpenRouter.Timeout)
    cfg.OpenRouter.Backoff = parseDuration(env("OPENROUTER_BACKOFF"), cfg.OpenRouter.Backoff)
    cfg.OpenRouter.Referer = getEnv(env, "OPENROUTER_REFERER", cfg.OpenRouter.Referer)
    cfg.OpenRouter.Title = getEnv(env, "OPENROUTER_TITLE", cfg.OpenRouter.Title)

    // Image
    cfg.Image.MaxWidth = parseInt(env("IMAGE_MAX_WIDTH"), cfg.Image.MaxWidth)
    cfg.Image.Contrast = parseFloat(env("IMAGE_CONTRAST"), cfg.Image.Contrast)
    cfg.Image.Quality = parseInt(env("IMAGE_JPEG_QUALITY"), cfg.Image.Quality)
}

// Helpers
func getEnv(env func(string) string, key, def string) string {
    if v := env(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    // bare numbers are seconds
    if n, err := strconv.Atoi(s); err == nil { return time.Duration(n) * time.Second }
    return def
}

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
    }
    return out
}

func devEnvironment(env string) bool {
    env = strings.ToLower(env)
    return env == "dev" || env == "development" || env == "local"
}
