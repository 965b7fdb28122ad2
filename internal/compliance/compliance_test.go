package compliance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/storytrace/internal/metrics"
	"github.com/dshills/storytrace/internal/schema"
)

// clauseEmbedder gives each knowledge base clause a one-hot vector and
// answers every query with a fixed vector.
type clauseEmbedder struct {
	query    []float32
	docErr   error
	queryErr error
}

func (c *clauseEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if c.docErr != nil {
		return nil, c.docErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, len(texts))
		v[i] = 1
		out[i] = v
	}
	return out, nil
}

func (c *clauseEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.query, nil
}

func queryToward(weights map[int]float32) []float32 {
	v := make([]float32, len(KnowledgeBase))
	for i, w := range weights {
		v[i] = w
	}
	return v
}

func rbacStory() schema.Story {
	return schema.Story{
		StoryID:              "s1",
		Epic:                 " Access ",
		Priority:             schema.PriorityMust,
		UserStory:            "As an admin, I want role-based access control on charts.",
		SourceRequirementIDs: []string{"REQ-4", "REQ-5"},
		Citations:            []schema.Citation{{Page: 3}, {Page: 7}},
		AlignmentScore:       0.4,
	}
}

func TestGap_MissingEqualsExpectedMinusDetected(t *testing.T) {
	evidence := Evidence(&schema.Story{UserStory: "Clinicians need role-based access control."}, nil)
	expected := Expected([]Match{
		{Clause: Clause{Controls: []schema.ControlTag{schema.ControlRBAC}}},
		{Clause: Clause{Controls: []schema.ControlTag{schema.ControlAuditTrail}}},
	})
	detected := DetectControls(evidence)

	assert.True(t, detected.Has(schema.ControlRBAC))
	assert.Equal(t, schema.NewControlSet(schema.ControlAuditTrail), expected.Minus(detected))
}

func TestDetectControls(t *testing.T) {
	tests := []struct {
		text string
		want []schema.ControlTag
	}{
		{"", nil},
		{"Data is encrypted with AES over TLS", []schema.ControlTag{schema.ControlEncryption}},
		{"Supervisor sign-off with e-signature", []schema.ControlTag{schema.ControlESignature}},
		{"Changes go to the audit trail with a timestamp", []schema.ControlTag{schema.ControlAuditTrail, schema.ControlDataIntegrity}},
		{"De-identify PHI before export", []schema.ControlTag{schema.ControlPIIProtection}},
		{"Hazard analysis and V&V evidence", []schema.ControlTag{schema.ControlRiskManagement, schema.ControlVerificationValidation}},
		{"Catalog of dialogue", nil},
	}
	for _, tt := range tests {
		got := DetectControls(tt.text)
		assert.ElementsMatch(t, tt.want, got.Sorted(), "text %q", tt.text)
	}
}

func TestEvidence_CombinesStoryAndSteps(t *testing.T) {
	s := schema.Story{
		UserStory:          "As a nurse I record vitals",
		AcceptanceCriteria: []schema.AcceptanceCriterion{{Given: "a chart", When: "I save", Then: "it persists"}},
		NonFunctional:      []string{"", "p95 < 2s"},
	}
	got := Evidence(&s, []schema.TestCase{{StepAction: "open chart", StepExpected: ""}})
	assert.Equal(t, "As a nurse I record vitals\nGIVEN a chart\nWHEN I save\nTHEN it persists\np95 < 2s\nopen chart", got)
}

func TestRetrieve_EmbeddingRanking(t *testing.T) {
	e := &clauseEmbedder{query: queryToward(map[int]float32{4: 1, 0: 0.5})}
	r := NewRetriever(context.Background(), e, Options{})
	require.True(t, r.Embedding())

	got := r.Retrieve(context.Background(), "anything", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "A.9", got[0].Clause.Clause)
	assert.Equal(t, "11.10(e)", got[1].Clause.Clause)
	assert.Greater(t, got[0].Score, got[1].Score)

	assert.Nil(t, r.Retrieve(context.Background(), "", 2))
}

func TestRetrieve_KeywordFallbackWhenEmbedderMissing(t *testing.T) {
	rec := metrics.New()
	r := NewRetriever(context.Background(), nil, Options{Metrics: rec})
	assert.False(t, r.Embedding())

	got := r.Retrieve(context.Background(), "encrypted at rest with a checksum", 2)
	require.Len(t, got, 2)
	// A.10 mentions both encryption and data integrity.
	assert.Equal(t, "A.10", got[0].Clause.Clause)
	assert.Equal(t, 2.0, got[0].Score)
	assert.Equal(t, 1.0, got[1].Score)
	assert.Equal(t, "11.10(e)", got[1].Clause.Clause, "ties keep knowledge base order")
}

func TestRetrieve_KeywordFallbackOnEmbedErrors(t *testing.T) {
	r := NewRetriever(context.Background(), &clauseEmbedder{docErr: errors.New("no credentials")}, Options{})
	assert.False(t, r.Embedding())

	r = NewRetriever(context.Background(), &clauseEmbedder{queryErr: errors.New("timeout")}, Options{})
	require.True(t, r.Embedding())
	got := r.Retrieve(context.Background(), "role-based access", 1)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, "11.100", got[0].Clause.Clause)
}

func TestAnalyze_RowPerStory(t *testing.T) {
	e := &clauseEmbedder{query: queryToward(map[int]float32{4: 1, 0: 0.5})}
	r := NewRetriever(context.Background(), e, Options{})

	other := schema.Story{StoryID: "s2", UserStory: strings.Repeat("long ", 1000)}
	rows := Analyze(context.Background(), r, []schema.Story{rbacStory(), other}, []schema.TestCase{
		{StoryID: "s1", StepAction: "Open the chart as a clerk", StepExpected: "Chart is hidden"},
		{StoryID: "s9", StepAction: "audit trail shown"},
	}, Options{TopK: 2})
	require.Len(t, rows, 2)

	row := rows[0]
	assert.Equal(t, "REQ-4", row.RequirementID)
	assert.Equal(t, "Access", row.Epic)
	assert.Equal(t, "Must", row.Priority)
	assert.Equal(t, "3;7", row.Pages)
	assert.Equal(t, []schema.ClauseMatch{
		{Standard: "ISO 27001", Clause: "A.9", Score: 0.894},
		{Standard: "FDA 21 CFR Part 11", Clause: "11.10(e)", Score: 0.447},
	}, row.MatchedClauses)
	assert.Equal(t, "audit_trail; data_integrity; rbac; traceability", row.ExpectedControls.Join("; "))
	assert.Equal(t, "rbac", row.DetectedControls.Join("; "))
	assert.Equal(t, "audit_trail; data_integrity; traceability", row.MissingControls.Join("; "))
	assert.Contains(t, row.Evidence, "Chart is hidden")
	assert.NotContains(t, row.Evidence, "audit trail shown")

	assert.Len(t, []rune(rows[1].Evidence), DefaultEvidenceChars)
	assert.Equal(t, 2, WithGaps(rows))

	recs := Records(rows)
	require.Len(t, recs[0], len(Header))
	assert.Equal(t, "ISO 27001 A.9; FDA 21 CFR Part 11 11.10(e)", recs[0][8])
	assert.Equal(t, "0.894; 0.447", recs[0][9])
	assert.Equal(t, "false", recs[0][7])
}
