package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.Requirements(4)
	r.Outcome(OutcomeGenerated)
	r.Outcome(OutcomeGenerated)
	r.Outcome(OutcomeAbstained)
	r.BatchTimeout()
	r.NeedsReview(2)
	r.DuplicatesDropped(1)
	r.ComplianceFallback()
	r.ObserveLLMCall(1500 * time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(r.requirements))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues(OutcomeGenerated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues(OutcomeAbstained)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.outcomes.WithLabelValues(OutcomeMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.batchTimeouts))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.needsReview))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.duplicatesDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.complianceFallback))
	assert.Equal(t, 1, testutil.CollectAndCount(r.llmCall))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Requirements(1)
	r.Outcome(OutcomeError)
	r.ObserveLLMCall(time.Second)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.Requirements(3)
	path := filepath.Join(t.TempDir(), "storytrace.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "storytrace_requirements_total 3")
	assert.Contains(t, string(data), `storytrace_story_outcomes_total{outcome="timeout"} 0`)
}
