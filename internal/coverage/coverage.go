// Package coverage joins requirements, stories and test cases into a
// traceability matrix and rolls it up per epic.
package coverage

import (
	"math"
	"sort"
	"strconv"

	"github.com/dshills/storytrace/internal/artifact"
	"github.com/dshills/storytrace/internal/schema"
	"github.com/dshills/storytrace/internal/testcase"
)

// ErrMissingInput is returned when a required input file does not exist.
var ErrMissingInput = artifact.ErrMissingInput

// Report is the matrix and its epic rollup.
type Report struct {
	Rows  []schema.CoverageRow
	Epics []schema.EpicCoverage
}

// Build computes the matrix and rollup.
func Build(reqs []schema.Requirement, stories []schema.Story, tests []schema.TestCase) *Report {
	rows := Matrix(reqs, stories, tests)
	return &Report{Rows: rows, Epics: Rollup(rows)}
}

// Load reads the three input artifacts and builds the report. The test cases
// path may be a CSV file or a directory of feature files. A missing input
// yields ErrMissingInput.
func Load(requirementsPath, storiesPath, testCasesPath string) (*Report, error) {
	reqs, err := artifact.LoadRequirements(requirementsPath)
	if err != nil {
		return nil, err
	}
	stories, err := artifact.LoadStories(storiesPath)
	if err != nil {
		return nil, err
	}
	tests, err := testcase.Load(testCasesPath)
	if err != nil {
		return nil, err
	}
	return Build(reqs, stories, tests), nil
}

// Matrix left-joins requirements with the stories that cite them and with
// each story's test case count. A story backing several requirements appears
// once per requirement; a requirement without stories yields one row with no
// story fields. Rows follow requirement order, then story order.
func Matrix(reqs []schema.Requirement, stories []schema.Story, tests []schema.TestCase) []schema.CoverageRow {
	counts := CountTests(tests)

	byReq := make(map[string][]int)
	for i := range stories {
		for _, id := range uniq(stories[i].SourceRequirementIDs) {
			byReq[id] = append(byReq[id], i)
		}
	}

	rows := make([]schema.CoverageRow, 0, len(reqs))
	for _, r := range reqs {
		matched := byReq[r.ReqID]
		if len(matched) == 0 {
			row := schema.CoverageRow{RequirementID: r.ReqID, RequirementText: r.Text, Epic: r.Epic}
			row.Status = Classify(row)
			rows = append(rows, row)
			continue
		}
		for _, i := range matched {
			s := &stories[i]
			row := schema.CoverageRow{
				RequirementID:   r.ReqID,
				RequirementText: r.Text,
				Epic:            r.Epic,
				StoryID:         s.StoryID,
				UserStory:       s.UserStory,
				Citations:       s.PagesString(),
				TestCaseCount:   counts[s.StoryID],
			}
			row.Status = Classify(row)
			rows = append(rows, row)
		}
	}
	return rows
}

// CountTests counts test case rows per story id. Rows without a story id are
// ignored.
func CountTests(tests []schema.TestCase) map[string]int {
	counts := make(map[string]int)
	for _, tc := range tests {
		if tc.StoryID != "" {
			counts[tc.StoryID]++
		}
	}
	return counts
}

// Classify assigns the coverage status of a joined row.
func Classify(row schema.CoverageRow) schema.CoverageStatus {
	switch {
	case row.HasStory() && row.TestCaseCount > 0:
		return schema.CoverageCovered
	case row.HasStory() && row.TestCaseCount == 0:
		return schema.CoverageNoTests
	case !row.HasStory():
		return schema.CoverageNoStories
	default:
		return schema.CoverageMissingEverything
	}
}

// Rollup aggregates the matrix per epic using distinct requirement counts.
// Epics are returned in lexical order.
func Rollup(rows []schema.CoverageRow) []schema.EpicCoverage {
	type tally struct {
		reqs, withStory, withTests map[string]bool
	}
	epics := make(map[string]*tally)
	for _, r := range rows {
		t, ok := epics[r.Epic]
		if !ok {
			t = &tally{reqs: map[string]bool{}, withStory: map[string]bool{}, withTests: map[string]bool{}}
			epics[r.Epic] = t
		}
		t.reqs[r.RequirementID] = true
		if r.HasStory() {
			t.withStory[r.RequirementID] = true
		}
		if r.HasStory() && r.TestCaseCount > 0 {
			t.withTests[r.RequirementID] = true
		}
	}

	names := make([]string, 0, len(epics))
	for name := range epics {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]schema.EpicCoverage, 0, len(names))
	for _, name := range names {
		t := epics[name]
		total := len(t.reqs)
		out = append(out, schema.EpicCoverage{
			Epic:              name,
			TotalRequirements: total,
			WithStories:       len(t.withStory),
			WithTests:         len(t.withTests),
			StoryCoveragePct:  pct(len(t.withStory), total),
			TestCoveragePct:   pct(len(t.withTests), total),
		})
	}
	return out
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// MatrixHeader is the column layout of coverage_matrix.csv.
var MatrixHeader = []string{"Requirement ID", "Requirement Text", "Epic", "Story Id", "User Story", "Citations", "Test Case Count", "Coverage Status"}

// MatrixRecords renders rows for coverage_matrix.csv.
func MatrixRecords(rows []schema.CoverageRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{r.RequirementID, r.RequirementText, r.Epic, r.StoryID, r.UserStory, r.Citations, strconv.Itoa(r.TestCaseCount), string(r.Status)}
	}
	return out
}

// EpicHeader is the column layout of epic_coverage.csv.
var EpicHeader = []string{"Epic", "total_reqs", "with_stories", "with_tests", "story_coverage_pct", "test_coverage_pct"}

// EpicRecords renders the rollup for epic_coverage.csv.
func EpicRecords(epics []schema.EpicCoverage) [][]string {
	out := make([][]string, len(epics))
	for i, e := range epics {
		out[i] = []string{
			e.Epic,
			strconv.Itoa(e.TotalRequirements),
			strconv.Itoa(e.WithStories),
			strconv.Itoa(e.WithTests),
			strconv.FormatFloat(e.StoryCoveragePct, 'f', 1, 64),
			strconv.FormatFloat(e.TestCoveragePct, 'f', 1, 64),
		}
	}
	return out
}
