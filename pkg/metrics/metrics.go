// Package metrics records run telemetry: collaborator requests, token
// usage, build attempts, and verdicts. Recorders use a private registry so
// repeated runs in one process never collide, and the registry contents can
// be dumped to a file in Prometheus text format at exit.
package metrics

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Recorder defines the telemetry surface of a run.
type Recorder interface {
	// ObserveLLMRequest records a completed collaborator request.
	ObserveLLMRequest(model, operation, status string, promptTokens, completionTokens int, duration time.Duration)

	// IncBuildAttempt records one image build attempt and its outcome.
	IncBuildAttempt(status string)

	// IncVerdict records one judge verdict ("true" or "false").
	IncVerdict(verdict string)
}

// PrometheusRecorder implements Recorder on a private Prometheus registry.
type PrometheusRecorder struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	buildsTotal     *prometheus.CounterVec
	verdictsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder whose metrics carry the run ID as
// a constant label.
func NewPrometheusRecorder(runID string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	factory := func(name, help string, labels []string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"run_id": runID},
		}, labels)
		registry.MustRegister(c)
		return c
	}

	r := &PrometheusRecorder{
		registry:      registry,
		requestsTotal: factory("llm_requests_total", "Total LLM requests by model, operation, and status", []string{"model", "operation", "status"}),
		tokensTotal:   factory("llm_tokens_total", "Total tokens used in LLM requests", []string{"model", "operation", "type"}),
		buildsTotal:   factory("build_attempts_total", "Total image build attempts by status", []string{"status"}),
		verdictsTotal: factory("verdicts_total", "Total judge verdicts", []string{"verdict"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "llm_request_duration_seconds",
			Help:        "Duration of LLM requests in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"run_id": runID},
		}, []string{"model", "operation"}),
	}
	registry.MustRegister(r.requestDuration)
	return r
}

// ObserveLLMRequest implements Recorder. Tokens are recorded only for
// successful requests.
func (p *PrometheusRecorder) ObserveLLMRequest(model, operation, status string, promptTokens, completionTokens int, duration time.Duration) {
	p.requestsTotal.WithLabelValues(model, operation, status).Inc()
	if status == "success" {
		p.tokensTotal.WithLabelValues(model, operation, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, operation, "completion").Add(float64(completionTokens))
	}
	p.requestDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
}

// IncBuildAttempt implements Recorder.
func (p *PrometheusRecorder) IncBuildAttempt(status string) {
	p.buildsTotal.WithLabelValues(status).Inc()
}

// IncVerdict implements Recorder.
func (p *PrometheusRecorder) IncVerdict(verdict string) {
	p.verdictsTotal.WithLabelValues(verdict).Inc()
}

// DumpTo writes the registry contents to path in Prometheus text format.
func (p *PrometheusRecorder) DumpTo(path string) error {
	families, err := p.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer f.Close()
	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return nil
}

// NoopRecorder discards all observations.
type NoopRecorder struct{}

// Nop returns a shared no-op recorder.
func Nop() *NoopRecorder { return &NoopRecorder{} }

func (*NoopRecorder) ObserveLLMRequest(_, _, _ string, _, _ int, _ time.Duration) {}
func (*NoopRecorder) IncBuildAttempt(string)                                      {}
func (*NoopRecorder) IncVerdict(string)                                           {}
