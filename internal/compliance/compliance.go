// Package compliance maps stories and their test steps to regulatory clauses
// and reports controls the clauses expect but the text does not evidence.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/storytrace/internal/artifact"
	"github.com/dshills/storytrace/internal/embed"
	"github.com/dshills/storytrace/internal/logging"
	"github.com/dshills/storytrace/internal/metrics"
	"github.com/dshills/storytrace/internal/review"
	"github.com/dshills/storytrace/internal/schema"
)

// Defaults for Options fields left at zero.
const (
	DefaultTopK          = 4
	DefaultEvidenceChars = 2000
)

// ErrMissingInput is returned when a required input file does not exist.
var ErrMissingInput = artifact.ErrMissingInput

// Options configures Analyze.
type Options struct {
	TopK          int
	EvidenceChars int
	Logger        *slog.Logger
	Metrics       *metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.EvidenceChars <= 0 {
		o.EvidenceChars = DefaultEvidenceChars
	}
	return o
}

// Match is a retrieved clause with its similarity or keyword-hit score.
type Match struct {
	Clause
	Score float64
}

// Retriever ranks knowledge base clauses against evidence text, by embedding
// similarity when an embedder is available and by keyword hits otherwise.
type Retriever struct {
	kb   []Clause
	e    embed.Embedder
	vecs [][]float32
	log  *slog.Logger
	rec  *metrics.Recorder
}

// NewRetriever embeds the knowledge base with e. A nil e, or a failure to
// embed the knowledge base, leaves the retriever in keyword mode; the
// failure is logged and counted, not returned.
func NewRetriever(ctx context.Context, e embed.Embedder, opts Options) *Retriever {
	r := &Retriever{
		kb:  KnowledgeBase,
		log: logging.Component(opts.Logger, "compliance"),
		rec: opts.Metrics,
	}
	if e == nil {
		r.fallback("no embedder configured")
		return r
	}
	texts := make([]string, len(r.kb))
	for i, c := range r.kb {
		texts[i] = c.Text()
	}
	vecs, err := e.EmbedDocuments(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("got %d vectors for %d clauses", len(vecs), len(texts))
	}
	if err != nil {
		r.fallback("embedding knowledge base failed", "error", err)
		return r
	}
	r.e, r.vecs = e, vecs
	return r
}

// Embedding reports whether the retriever ranks by embedding similarity.
func (r *Retriever) Embedding() bool { return r.e != nil }

func (r *Retriever) fallback(msg string, args ...any) {
	r.log.Warn(msg+", using keyword matching", args...)
	r.rec.ComplianceFallback()
}

// Retrieve returns the topK clauses most relevant to text, highest score
// first, ties in knowledge base order. Empty text matches nothing. A failed
// query embedding falls back to keyword ranking for that query.
func (r *Retriever) Retrieve(ctx context.Context, text string, topK int) []Match {
	if text == "" || topK <= 0 {
		return nil
	}
	scores := r.keywordScores(text)
	if r.e != nil {
		q, err := r.e.EmbedQuery(ctx, text)
		if err != nil {
			r.fallback("embedding evidence failed", "error", err)
		} else {
			for i := range scores {
				scores[i] = embed.Cosine(q, r.vecs[i])
			}
		}
	}

	order := make([]int, len(r.kb))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	n := min(topK, len(order))
	out := make([]Match, n)
	for i := 0; i < n; i++ {
		out[i] = Match{Clause: r.kb[order[i]], Score: scores[order[i]]}
	}
	return out
}

// keywordScores counts, per clause, how many of its controls the text
// mentions.
func (r *Retriever) keywordScores(text string) []float64 {
	scores := make([]float64, len(r.kb))
	for i, c := range r.kb {
		for _, tag := range c.Controls {
			if mentions(tag, text) {
				scores[i]++
			}
		}
	}
	return scores
}

// Evidence joins the story narrative, acceptance criteria, non-functional
// notes and test steps into one blob, skipping empty parts.
func Evidence(s *schema.Story, steps []schema.TestCase) string {
	parts := []string{s.UserStory}
	for _, ac := range s.AcceptanceCriteria {
		parts = append(parts, "GIVEN "+ac.Given, "WHEN "+ac.When, "THEN "+ac.Then)
	}
	parts = append(parts, s.NonFunctional...)
	for _, tc := range steps {
		parts = append(parts, tc.StepAction, tc.StepExpected)
	}

	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

// Expected returns the union of controls attached to the matched clauses.
func Expected(matches []Match) schema.ControlSet {
	set := make(schema.ControlSet)
	for _, m := range matches {
		for _, tag := range m.Controls {
			set[tag] = struct{}{}
		}
	}
	return set
}

// Analyze produces one evidence row per story, in story order.
func Analyze(ctx context.Context, r *Retriever, stories []schema.Story, tests []schema.TestCase, opts Options) []schema.ComplianceRow {
	opts = opts.withDefaults()
	steps := make(map[string][]schema.TestCase)
	for _, tc := range tests {
		if tc.StoryID != "" {
			steps[tc.StoryID] = append(steps[tc.StoryID], tc)
		}
	}

	rows := make([]schema.ComplianceRow, 0, len(stories))
	for i := range stories {
		s := &stories[i]
		evidence := Evidence(s, steps[s.StoryID])
		matches := r.Retrieve(ctx, evidence, opts.TopK)
		expected := Expected(matches)
		detected := DetectControls(evidence)

		clauses := make([]schema.ClauseMatch, len(matches))
		for j, m := range matches {
			clauses[j] = schema.ClauseMatch{Standard: m.Standard, Clause: m.Clause.Clause, Score: review.Round(m.Score, 3)}
		}
		rows = append(rows, schema.ComplianceRow{
			RequirementID:    s.PrimaryRequirementID(),
			StoryID:          s.StoryID,
			Epic:             strings.TrimSpace(s.Epic),
			Priority:         strings.TrimSpace(string(s.Priority)),
			UserStory:        s.UserStory,
			Pages:            s.PagesString(),
			AlignmentScore:   s.AlignmentScore,
			NeedsReview:      s.NeedsReview,
			MatchedClauses:   clauses,
			ExpectedControls: expected,
			DetectedControls: detected,
			MissingControls:  expected.Minus(detected),
			Evidence:         capRunes(evidence, opts.EvidenceChars),
		})
	}
	return rows
}

// WithGaps counts rows that have at least one missing control.
func WithGaps(rows []schema.ComplianceRow) int {
	n := 0
	for _, r := range rows {
		if len(r.MissingControls) > 0 {
			n++
		}
	}
	return n
}

// Header is the column layout of compliance_evidence.csv.
var Header = []string{
	"Requirement ID", "Story Id", "Epic", "Priority", "User Story", "Pages (Citations)",
	"Alignment Score", "Needs Review", "Matched Clauses", "Clause Scores",
	"Expected Controls", "Detected Controls", "Missing Controls", "Evidence (Story + Steps)",
}

// Records renders rows for compliance_evidence.csv.
func Records(rows []schema.ComplianceRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		labels := make([]string, len(r.MatchedClauses))
		scores := make([]string, len(r.MatchedClauses))
		for j, c := range r.MatchedClauses {
			labels[j] = c.Label()
			scores[j] = strconv.FormatFloat(c.Score, 'f', -1, 64)
		}
		out[i] = []string{
			r.RequirementID,
			r.StoryID,
			r.Epic,
			r.Priority,
			r.UserStory,
			r.Pages,
			strconv.FormatFloat(r.AlignmentScore, 'f', -1, 64),
			strconv.FormatBool(r.NeedsReview),
			strings.Join(labels, "; "),
			strings.Join(scores, "; "),
			r.ExpectedControls.Join("; "),
			r.DetectedControls.Join("; "),
			r.MissingControls.Join("; "),
			r.Evidence,
		}
	}
	return out
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
