// Package metrics records pipeline counters in a private Prometheus registry
// and writes them out in the text exposition format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storytrace"

// Story generation outcomes, one per requirement per run.
const (
	OutcomeGenerated = "generated"
	OutcomeAbstained = "abstained"
	OutcomeMalformed = "malformed"
	OutcomeInvalid   = "invalid"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Outcomes lists every outcome label in report order.
var Outcomes = []string{OutcomeGenerated, OutcomeAbstained, OutcomeMalformed, OutcomeInvalid, OutcomeTimeout, OutcomeError}

// Recorder owns the run's metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	reg *prometheus.Registry

	requirements       prometheus.Counter
	outcomes           *prometheus.CounterVec
	batchTimeouts      prometheus.Counter
	needsReview        prometheus.Counter
	duplicatesDropped  prometheus.Counter
	complianceFallback prometheus.Counter
	llmCall            prometheus.Histogram
}

// New builds a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		requirements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requirements_total",
			Help:      "Requirements segmented from source documents.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "story_outcomes_total",
			Help:      "Story generation outcomes per requirement.",
		}, []string{"outcome"}),
		batchTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_timeouts_total",
			Help:      "Generation batches that hit the shared timeout.",
		}),
		needsReview: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stories_needs_review_total",
			Help:      "Stories flagged for review by the alignment check.",
		}),
		duplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_dropped_total",
			Help:      "Stories dropped as near duplicates.",
		}),
		complianceFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compliance_embedding_fallback_total",
			Help:      "Compliance runs that fell back to keyword clause matching.",
		}),
		llmCall: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_seconds",
			Help:      "Latency of individual model calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
	}
	r.reg.MustRegister(r.requirements, r.outcomes, r.batchTimeouts, r.needsReview,
		r.duplicatesDropped, r.complianceFallback, r.llmCall)
	// Pre-create every outcome series so zero counts are still exported.
	for _, o := range Outcomes {
		r.outcomes.WithLabelValues(o)
	}
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Recorder) Requirements(n int) {
	if r != nil {
		r.requirements.Add(float64(n))
	}
}

func (r *Recorder) Outcome(outcome string) {
	if r != nil {
		r.outcomes.WithLabelValues(outcome).Inc()
	}
}

func (r *Recorder) BatchTimeout() {
	if r != nil {
		r.batchTimeouts.Inc()
	}
}

func (r *Recorder) NeedsReview(n int) {
	if r != nil {
		r.needsReview.Add(float64(n))
	}
}

func (r *Recorder) DuplicatesDropped(n int) {
	if r != nil {
		r.duplicatesDropped.Add(float64(n))
	}
}

func (r *Recorder) ComplianceFallback() {
	if r != nil {
		r.complianceFallback.Inc()
	}
}

func (r *Recorder) ObserveLLMCall(d time.Duration) {
	if r != nil {
		r.llmCall.Observe(d.Seconds())
	}
}

// WriteTextfile writes every metric to path in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
