package coverage

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/storytrace/internal/artifact"
	"github.com/dshills/storytrace/internal/schema"
)

func fixture() ([]schema.Requirement, []schema.Story, []schema.TestCase) {
	reqs := []schema.Requirement{
		{ReqID: "1.1", Text: "log in", Epic: "Access"},
		{ReqID: "1.2", Text: "log out", Epic: "Access"},
		{ReqID: "2.1", Text: "record vitals", Epic: "Vitals"},
		{ReqID: "3.1", Text: "print invoices", Epic: "Billing"},
	}
	stories := []schema.Story{
		{StoryID: "s-login", UserStory: "As a user I log in", SourceRequirementIDs: []string{"1.1", "1.2"},
			Citations: []schema.Citation{{Page: 2}, {Page: 3}}},
		{StoryID: "s-vitals", UserStory: "As a nurse I record vitals", SourceRequirementIDs: []string{"2.1"}},
		{StoryID: "s-vitals-2", UserStory: "As a nurse I amend vitals", SourceRequirementIDs: []string{"2.1", "2.1"}},
	}
	tests := []schema.TestCase{
		{StoryID: "s-login", StepAction: "a"},
		{StoryID: "s-login", StepAction: "b"},
		{StoryID: "s-vitals", StepAction: "c"},
		{StoryID: "", StepAction: "orphan"},
	}
	return reqs, stories, tests
}

func TestMatrix_ExplodesAndLeftJoins(t *testing.T) {
	reqs, stories, tests := fixture()
	rows := Matrix(reqs, stories, tests)

	type key struct {
		req, story string
		count      int
		status     schema.CoverageStatus
	}
	var got []key
	for _, r := range rows {
		got = append(got, key{r.RequirementID, r.StoryID, r.TestCaseCount, r.Status})
	}
	assert.Equal(t, []key{
		{"1.1", "s-login", 2, schema.CoverageCovered},
		{"1.2", "s-login", 2, schema.CoverageCovered},
		{"2.1", "s-vitals", 1, schema.CoverageCovered},
		{"2.1", "s-vitals-2", 0, schema.CoverageNoTests},
		{"3.1", "", 0, schema.CoverageNoStories},
	}, got)
	assert.Equal(t, "2;3", rows[0].Citations)
	assert.Equal(t, "Access", rows[1].Epic)
}

func TestMatrix_StatusExhaustive(t *testing.T) {
	reqs, stories, tests := fixture()
	valid := map[schema.CoverageStatus]bool{
		schema.CoverageCovered:           true,
		schema.CoverageNoTests:           true,
		schema.CoverageNoStories:         true,
		schema.CoverageMissingEverything: true,
	}
	for _, r := range Matrix(reqs, stories, tests) {
		require.True(t, valid[r.Status], "unexpected status %q", r.Status)
		if r.Status == schema.CoverageCovered {
			assert.True(t, r.HasStory())
			assert.Positive(t, r.TestCaseCount)
		}
	}
}

func TestMatrix_NoInputs(t *testing.T) {
	assert.Empty(t, Matrix(nil, nil, nil))
	rows := Matrix([]schema.Requirement{{ReqID: "AUTO-1", Epic: "General"}}, nil, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, schema.CoverageNoStories, rows[0].Status)
}

func TestRollup_DistinctRequirements(t *testing.T) {
	reqs, stories, tests := fixture()
	epics := Rollup(Matrix(reqs, stories, tests))

	assert.Equal(t, []schema.EpicCoverage{
		{Epic: "Access", TotalRequirements: 2, WithStories: 2, WithTests: 2, StoryCoveragePct: 100, TestCoveragePct: 100},
		{Epic: "Billing", TotalRequirements: 1, WithStories: 0, WithTests: 0, StoryCoveragePct: 0, TestCoveragePct: 0},
		{Epic: "Vitals", TotalRequirements: 1, WithStories: 1, WithTests: 1, StoryCoveragePct: 100, TestCoveragePct: 100},
	}, epics)
}

func TestRollup_RoundsToOneDecimal(t *testing.T) {
	rows := []schema.CoverageRow{
		{RequirementID: "1", Epic: "E", StoryID: "s", TestCaseCount: 1},
		{RequirementID: "2", Epic: "E"},
		{RequirementID: "3", Epic: "E"},
	}
	epics := Rollup(rows)
	require.Len(t, epics, 1)
	assert.Equal(t, 33.3, epics[0].StoryCoveragePct)
	assert.Equal(t, 33.3, epics[0].TestCoveragePct)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, schema.CoverageCovered, Classify(schema.CoverageRow{StoryID: "s", TestCaseCount: 3}))
	assert.Equal(t, schema.CoverageNoTests, Classify(schema.CoverageRow{StoryID: "s"}))
	assert.Equal(t, schema.CoverageNoStories, Classify(schema.CoverageRow{}))
}

func TestRecords(t *testing.T) {
	reqs, stories, tests := fixture()
	r := Build(reqs, stories, tests)

	recs := MatrixRecords(r.Rows)
	require.Len(t, recs, len(r.Rows))
	assert.Len(t, recs[0], len(MatrixHeader))
	assert.Equal(t, []string{"3.1", "print invoices", "Billing", "", "", "", "0", "NoStories"}, recs[4])

	epics := EpicRecords(r.Epics)
	assert.Equal(t, []string{"Access", "2", "2", "2", "100.0", "100.0"}, epics[0])
}

func TestLoad_MissingInputs(t *testing.T) {
	dir := t.TempDir()
	reqPath := filepath.Join(dir, artifact.RequirementsFile)
	storiesPath := filepath.Join(dir, artifact.StoriesFile)
	testsPath := filepath.Join(dir, artifact.TestCasesFile)

	_, err := Load(reqPath, storiesPath, testsPath)
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	reqs, stories, _ := fixture()
	require.NoError(t, artifact.WriteJSON(reqPath, reqs))
	require.NoError(t, artifact.WriteJSON(storiesPath, stories))
	_, err = Load(reqPath, storiesPath, testsPath)
	assert.ErrorIs(t, err, ErrMissingInput)

	require.NoError(t, artifact.WriteCSV(testsPath, []string{"Story Id", "Step Action"}, [][]string{{"s-vitals-2", "amend"}}))
	r, err := Load(reqPath, storiesPath, testsPath)
	require.NoError(t, err)
	require.Len(t, r.Rows, 5)
	assert.Equal(t, schema.CoverageCovered, r.Rows[3].Status)
	assert.Equal(t, schema.CoverageNoTests, r.Rows[0].Status)
}
