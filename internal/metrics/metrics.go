package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    providerReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "facturador",
            Name:      "provider_requests_total",
            Help:      "Total provider attempts by provider, model and result",
        },
        []string{"provider", "model", "result"},
    )

    providerLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "facturador",
            Name:      "provider_request_duration_seconds",
            Help:      "Duration of provider attempts by provider and model",
            Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 120, 300, 600},
        },
        []string{"provider", "model"},
    )

    extractions = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "facturador",
            Name:      "extractions_total",
            Help:      "Extraction calls by provider kind and final result",
        },
        []string{"provider", "result"},
    )

    repairResults = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "facturador",
            Name:      "repair_results_total",
            Help:      "JSON repair outcomes (parsed, malformed)",
        },
        []string{"result"},
    )

    tokensGenerated = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "facturador",
            Name:      "tokens_generated_total",
            Help:      "Generated tokens (stream deltas or reported usage) by provider",
        },
        []string{"provider"},
    )

    fallbacks = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "facturador",
            Name:      "fallbacks_total",
            Help:      "Advances to the next candidate model, by error kind",
        },
        []string{"kind"},
    )

    registerOnce sync.Once
)

// Init registers collectors.
func Init() {
    registerOnce.Do(func() {
        prometheus.MustRegister(providerReqs, providerLatency, extractions, repairResults, tokensGenerated, fallbacks)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveProvider(provider, model, result string, dur time.Duration) {
    providerReqs.WithLabelValues(provider, model, result).Inc()
    providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncExtraction(provider, result string) { extractions.WithLabelValues(provider, result).Inc() }
func IncRepair(result string)               { repairResults.WithLabelValues(result).Inc() }
func IncFallback(kind string)               { fallbacks.WithLabelValues(kind).Inc() }

func AddTokens(provider string, n int) {
    if n <= 0 { return }
    tokensGenerated.WithLabelValues(provider).Add(float64(n))
}
