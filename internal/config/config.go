package config

import (
    "errors"
    "fmt"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string `yaml:"level"`
    Pretty     bool   `yaml:"pretty"`
    File       string `yaml:"file"`
    MaxSizeMB  int    `yaml:"max_size_mb"`
    MaxBackups int    `yaml:"max_backups"`
    MaxAgeDays int    `yaml:"max_age_days"`
    Compress   bool   `yaml:"compress"`
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool          `yaml:"send"`
    APIKey        string        `yaml:"api_key"`
    OrgID         string        `yaml:"org_id"`
    Dataset       string        `yaml:"dataset"`
    FlushInterval time.Duration `yaml:"flush_interval"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
    Port        int    `yaml:"port"`
    StaticDir   string `yaml:"static_dir"`
    MaxUploadMB int    `yaml:"max_upload_mb"`
}

// ExtractionConfig holds what is sent to every model.
type ExtractionConfig struct {
    Provider         string        `yaml:"provider"` // "ollama"|"openrouter"
    Prompt           string        `yaml:"prompt"`
    MaxTokens        int           `yaml:"max_tokens"`
    Temperature      float64       `yaml:"temperature"`
    Sentinel         string        `yaml:"sentinel"`
    ProgressInterval time.Duration `yaml:"progress_interval"`
}

// OllamaConfig is the local backend.
type OllamaConfig struct {
    URL     string        `yaml:"url"`
    Model   string        `yaml:"model"`
    Timeout time.Duration `yaml:"timeout"`
}

// OpenRouterConfig is the remote gateway.
type OpenRouterConfig struct {
    URL       string        `yaml:"url"`
    APIKey    string        `yaml:"api_key"`
    Model     string        `yaml:"model"`
    Fallbacks []string      `yaml:"fallbacks"`
    Timeout   time.Duration `yaml:"timeout"`
    Backoff   time.Duration `yaml:"backoff"`
    Referer   string        `yaml:"referer"`
    Title     string        `yaml:"title"`
}

// ImageConfig drives upload optimization.
type ImageConfig struct {
    MaxWidth int     `yaml:"max_width"`
    Contrast float64 `yaml:"contrast"`
    Quality  int     `yaml:"quality"`
}

// Config is the top-level configuration. It is built once at startup and
// passed by value afterwards.
type Config struct {
    Logging    LoggingConfig    `yaml:"logging"`
    Axiom      AxiomConfig      `yaml:"axiom"`
    Server     ServerConfig     `yaml:"server"`
    Extraction ExtractionConfig `yaml:"extraction"`
    Ollama     OllamaConfig     `yaml:"ollama"`
    OpenRouter OpenRouterConfig `yaml:"openrouter"`
    Image      ImageConfig      `yaml:"image"`
}

// DefaultPrompt asks for the invoice document.
const DefaultPrompt = `Analiza esta factura y extrae la información en formato JSON estricto.
Incluye una lista de 'items' con: descripcion, cantidad, precio_unitario, subtotal.
Incluye totales con: subtotal_total, otros_tributos, total_final.
Si no encuentras algún campo, déjalo como 0 o string vacío.`

// Defaults returns the built-in configuration.
func Defaults() Config {
    return Config{
        Logging: LoggingConfig{
            Level:      "info",
            File:       "logs/facturador.log",
            MaxSizeMB:  100,
            MaxBackups: 10,
            MaxAgeDays: 30,
            Compress:   true,
        },
        Axiom: AxiomConfig{
            Dataset:       "dev_facturador",
            FlushInterval: 10 * time.Second,
        },
        Server: ServerConfig{
            Port:        5000,
            StaticDir:   "web/static",
            MaxUploadMB: 20,
        },
        Extraction: ExtractionConfig{
            Provider:         "ollama",
            Prompt:           DefaultPrompt,
            MaxTokens:        4096,
            Temperature:      0.1,
            Sentinel:         "content_filter",
            ProgressInterval: 500 * time.Millisecond,
        },
        Ollama: OllamaConfig{
            URL:     "http://localhost:11434/api/generate",
            Model:   "ministral-facturador-full",
            Timeout: 600 * time.Second,
        },
        OpenRouter: OpenRouterConfig{
            URL:     "https://openrouter.ai/api/v1",
            Model:   "qwen/qwen2.5-vl-72b-instruct:free",
            Timeout: 45 * time.Second,
            Backoff: time.Second,
            Title:   "facturador",
        },
        Image: ImageConfig{
            MaxWidth: 700,
            Contrast: 1.15,
            Quality:  93,
        },
    }
}

// Validate rejects configurations the extraction core cannot run with.
func (c Config) Validate() error {
    var errs []error
    switch c.Extraction.Provider {
    case "ollama", "openrouter":
    default:
        errs = append(errs, fmt.Errorf("unknown extraction provider %q", c.Extraction.Provider))
    }
    if c.Ollama.Timeout <= 0 {
        errs = append(errs, errors.New("ollama timeout must be positive"))
    }
    if c.OpenRouter.Timeout <= 0 {
        errs = append(errs, errors.New("openrouter timeout must be positive"))
    }
    if c.OpenRouter.Backoff < 0 {
        errs = append(errs, errors.New("openrouter backoff must not be negative"))
    }
    if c.Server.Port <= 0 || c.Server.Port > 65535 {
        errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
    }
    if c.Image.MaxWidth <= 0 || c.Image.Quality < 1 || c.Image.Quality > 100 {
        errs = append(errs, errors.New("invalid image settings"))
    }
    return errors.Join(errs...)
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment variables read through lookup.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
    cfg := Defaults()
    if path != "" {
        if err := applyFile(&cfg, path); err != nil {
            return Config{}, err
        }
    }
    applyEnv(&cfg, lookup)
    if err := cfg.Validate(); err != nil {
        return Config{}, fmt.Errorf("invalid config: %w", err)
    }
    return cfg, nil
}
