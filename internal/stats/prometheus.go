package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "aoai_nexus"

// Prometheus exposes the counters as Prometheus collectors.
//
// Metrics:
//   - aoai_nexus_proxy_requests_total{model}
//   - aoai_nexus_proxy_errors_total{model}
//   - aoai_nexus_proxy_tokens_total{model,kind} with kind prompt|completion|total
type Prometheus struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	tokens   *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with registry.
func NewPrometheus(registry prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Inbound proxy calls by client model",
			},
			[]string{"model"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "proxy",
				Name:      "errors_total",
				Help:      "Proxy calls that ended in a reported failure, by client model",
			},
			[]string{"model"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "proxy",
				Name:      "tokens_total",
				Help:      "Tokens reported by upstream usage objects, by client model and kind",
			},
			[]string{"model", "kind"},
		),
	}
	registry.MustRegister(p.requests, p.errors, p.tokens)
	return p
}

func (p *Prometheus) RecordRequest(model string) {
	p.requests.WithLabelValues(model).Inc()
}

func (p *Prometheus) RecordError(model string) {
	p.errors.WithLabelValues(model).Inc()
}

func (p *Prometheus) RecordUsage(model string, usage Usage) {
	for kind, n := range map[string]int64{
		"prompt":     usage.PromptTokens,
		"completion": usage.CompletionTokens,
		"total":      usage.TotalTokens,
	} {
		// Counters panic on negative deltas.
		if n > 0 {
			p.tokens.WithLabelValues(model, kind).Add(float64(n))
		}
	}
}
