package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Requirement is one atomic requirement segmented from a source document.
type Requirement struct {
	ReqID string `json:"req_id"`
	Text  string `json:"text"`
	Epic  string `json:"epic"`
}

// DefaultEpic is assigned when no document heading encloses a requirement.
const DefaultEpic = "General"

// AcceptanceCriterion is one Given/When/Then clause of a story.
type AcceptanceCriterion struct {
	Given string `json:"given"`
	When  string `json:"when"`
	Then  string `json:"then"`
}

// Citation points a story back to the page and text that justify it.
type Citation struct {
	Page    int    `json:"page"`
	Snippet string `json:"snippet"`
}

// Priority is the MoSCoW priority of a story.
type Priority string

const (
	PriorityMust   Priority = "Must"
	PriorityShould Priority = "Should"
	PriorityCould  Priority = "Could"
	PriorityWont   Priority = "Won't"
)

// IsValidPriority reports whether p is one of the four MoSCoW values.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityMust, PriorityShould, PriorityCould, PriorityWont:
		return true
	}
	return false
}

// Story is a user story generated from one or more requirements.
// AlignmentScore and NeedsReview are filled in after generation.
type Story struct {
	Epic                 string                `json:"epic"`
	StoryID              string                `json:"story_id"`
	UserStory            string                `json:"user_story"`
	AcceptanceCriteria   []AcceptanceCriterion `json:"acceptance_criteria"`
	Priority             Priority              `json:"priority"`
	Dependencies         []string              `json:"dependencies"`
	NonFunctional        []string              `json:"non_functional"`
	SourceRequirementIDs []string              `json:"source_requirement_ids"`
	Assumptions          []string              `json:"assumptions"`
	OpenQuestions        []string              `json:"open_questions"`
	Citations            []Citation            `json:"citations"`
	AlignmentScore       float64               `json:"alignment_score"`
	NeedsReview          bool                  `json:"needs_review"`
}

// PrimaryRequirementID returns the first source requirement id, or "".
func (s *Story) PrimaryRequirementID() string {
	if len(s.SourceRequirementIDs) == 0 {
		return ""
	}
	return s.SourceRequirementIDs[0]
}

// EmbeddingText flattens the narrative and acceptance criteria into the text
// used for duplicate detection.
func (s *Story) EmbeddingText() string {
	parts := make([]string, 0, len(s.AcceptanceCriteria))
	for _, ac := range s.AcceptanceCriteria {
		parts = append(parts, fmt.Sprintf("G:%s W:%s T:%s", ac.Given, ac.When, ac.Then))
	}
	return s.UserStory + " || " + strings.Join(parts, " | ")
}

// Pages returns the distinct positive citation pages in ascending order.
func (s *Story) Pages() []int {
	seen := make(map[int]bool)
	var pages []int
	for _, c := range s.Citations {
		if c.Page > 0 && !seen[c.Page] {
			seen[c.Page] = true
			pages = append(pages, c.Page)
		}
	}
	sort.Ints(pages)
	return pages
}

// PagesString joins the citation pages with ";" in citation order, keeping
// duplicates, for tabular exports.
func (s *Story) PagesString() string {
	var parts []string
	for _, c := range s.Citations {
		if c.Page > 0 {
			parts = append(parts, fmt.Sprint(c.Page))
		}
	}
	return strings.Join(parts, ";")
}

// SharesSource reports whether two stories have any source requirement id in common.
func SharesSource(a, b *Story) bool {
	if len(a.SourceRequirementIDs) == 0 || len(b.SourceRequirementIDs) == 0 {
		return false
	}
	ids := make(map[string]struct{}, len(a.SourceRequirementIDs))
	for _, id := range a.SourceRequirementIDs {
		ids[id] = struct{}{}
	}
	for _, id := range b.SourceRequirementIDs {
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}

// TestCase is one test step row produced by the test-case generator or
// loaded from an external test management export.
type TestCase struct {
	Title         string `json:"title"`
	StepAction    string `json:"step_action"`
	StepExpected  string `json:"step_expected"`
	RequirementID string `json:"requirement_id"`
	Priority      string `json:"priority"`
	Tags          string `json:"tags"`
	Pages         string `json:"pages"`
	StoryID       string `json:"story_id"`
	Epic          string `json:"epic"`
}

// CoverageStatus classifies a requirement/story pair by its test evidence.
type CoverageStatus string

const (
	CoverageCovered           CoverageStatus = "Covered"
	CoverageNoTests           CoverageStatus = "NoTests"
	CoverageNoStories         CoverageStatus = "NoStories"
	CoverageMissingEverything CoverageStatus = "MissingEverything"
)

// CoverageRow is one row of the requirement × story coverage matrix.
// StoryID is empty when no story matched the requirement.
type CoverageRow struct {
	RequirementID   string         `json:"requirement_id"`
	RequirementText string         `json:"requirement_text"`
	Epic            string         `json:"epic"`
	StoryID         string         `json:"story_id,omitempty"`
	UserStory       string         `json:"user_story,omitempty"`
	Citations       string         `json:"citations,omitempty"`
	TestCaseCount   int            `json:"test_case_count"`
	Status          CoverageStatus `json:"coverage_status"`
}

// HasStory reports whether the row joined a story.
func (r CoverageRow) HasStory() bool { return r.StoryID != "" }

// EpicCoverage is the per-epic rollup of the coverage matrix.
type EpicCoverage struct {
	Epic              string  `json:"epic"`
	TotalRequirements int     `json:"total_reqs"`
	WithStories       int     `json:"with_stories"`
	WithTests         int     `json:"with_tests"`
	StoryCoveragePct  float64 `json:"story_coverage_pct"`
	TestCoveragePct   float64 `json:"test_coverage_pct"`
}

// ControlTag names a regulatory safeguard detected in free text.
type ControlTag string

const (
	ControlAuditTrail             ControlTag = "audit_trail"
	ControlRBAC                   ControlTag = "rbac"
	ControlESignature             ControlTag = "e_signature"
	ControlDataIntegrity          ControlTag = "data_integrity"
	ControlEncryption             ControlTag = "encryption"
	ControlPIIProtection          ControlTag = "pii_protection"
	ControlTraceability           ControlTag = "traceability"
	ControlVerificationValidation ControlTag = "verification_validation"
	ControlRiskManagement         ControlTag = "risk_management"
)

// AllControlTags lists every control tag in canonical order.
var AllControlTags = []ControlTag{
	ControlAuditTrail,
	ControlRBAC,
	ControlESignature,
	ControlDataIntegrity,
	ControlEncryption,
	ControlPIIProtection,
	ControlTraceability,
	ControlVerificationValidation,
	ControlRiskManagement,
}

// ControlSet is a set of control tags.
type ControlSet map[ControlTag]struct{}

// NewControlSet builds a set from the given tags.
func NewControlSet(tags ...ControlTag) ControlSet {
	s := make(ControlSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether t is in the set.
func (s ControlSet) Has(t ControlTag) bool {
	_, ok := s[t]
	return ok
}

// Minus returns the tags in s that are not in other.
func (s ControlSet) Minus(other ControlSet) ControlSet {
	out := make(ControlSet)
	for t := range s {
		if !other.Has(t) {
			out[t] = struct{}{}
		}
	}
	return out
}

// Sorted returns the tags in lexical order.
func (s ControlSet) Sorted() []ControlTag {
	out := make([]ControlTag, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Join serializes the set as a sorted, sep-delimited string.
func (s ControlSet) Join(sep string) string {
	tags := s.Sorted()
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, sep)
}

// ClauseMatch is one regulatory clause matched to a story with its score.
type ClauseMatch struct {
	Standard string  `json:"standard"`
	Clause   string  `json:"clause"`
	Score    float64 `json:"score"`
}

// Label renders the clause as "<standard> <clause>".
func (c ClauseMatch) Label() string { return c.Standard + " " + c.Clause }

// ComplianceRow is the compliance evidence for one story.
type ComplianceRow struct {
	RequirementID    string        `json:"requirement_id"`
	StoryID          string        `json:"story_id"`
	Epic             string        `json:"epic"`
	Priority         string        `json:"priority"`
	UserStory        string        `json:"user_story"`
	Pages            string        `json:"pages"`
	AlignmentScore   float64       `json:"alignment_score"`
	NeedsReview      bool          `json:"needs_review"`
	MatchedClauses   []ClauseMatch `json:"matched_clauses"`
	ExpectedControls ControlSet    `json:"-"`
	DetectedControls ControlSet    `json:"-"`
	MissingControls  ControlSet    `json:"-"`
	Evidence         string        `json:"evidence"`
}

// Page is the text of one source document page. Number is 1-based.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}
