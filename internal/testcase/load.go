package testcase

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/dshills/storytrace/internal/artifact"
	"github.com/dshills/storytrace/internal/schema"
)

// Load reads test cases from a CSV file, or from every .feature file under
// path when it is a directory.
func Load(path string) ([]schema.TestCase, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, artifact.MissingInput(path, err)
	}
	if info.IsDir() {
		return LoadFeatures(path)
	}
	return LoadCSV(path)
}

// LoadCSV reads test case rows leniently: missing columns read as empty and
// common spellings of each column are accepted.
func LoadCSV(path string) ([]schema.TestCase, error) {
	tbl, err := artifact.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	cases := make([]schema.TestCase, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		cases = append(cases, schema.TestCase{
			Title:         tbl.Get(row, "Test Case Title", "title"),
			StepAction:    tbl.Get(row, "Step Action"),
			StepExpected:  tbl.Get(row, "Step Expected", "Step Result"),
			RequirementID: tbl.Get(row, "Requirement ID", "requirement_id"),
			Priority:      tbl.Get(row, "Priority"),
			Tags:          tbl.Get(row, "Tags"),
			Pages:         tbl.Get(row, "Pages"),
			StoryID:       tbl.Get(row, "story_id", "Story Id", "StoryID"),
			Epic:          tbl.Get(row, "Epic"),
		})
	}
	return cases, nil
}

// LoadFeatures parses every .feature file under dir, in lexical path order,
// and yields one test case per scenario that has steps. The story id comes
// from the scenario's @story_<id> tag.
func LoadFeatures(dir string) ([]schema.TestCase, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".feature") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, artifact.MissingInput(dir, err)
	}
	sort.Strings(paths)

	cases := []schema.TestCase{}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		fc, err := ParseFeature(p, data)
		if err != nil {
			return nil, err
		}
		cases = append(cases, fc...)
	}
	return cases, nil
}

// ParseFeature parses one feature file's content into test cases.
func ParseFeature(uri string, data []byte) ([]schema.TestCase, error) {
	newID := (&messages.Incrementing{}).NewId
	doc, err := gherkin.ParseGherkinDocument(bytes.NewReader(data), newID)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", uri, err)
	}
	if doc.Feature == nil {
		return nil, nil
	}

	var cases []schema.TestCase
	for _, p := range gherkin.Pickles(*doc, uri, newID) {
		if len(p.Steps) == 0 {
			continue
		}
		tc := schema.TestCase{Title: p.Name, Epic: doc.Feature.Name}
		var action, expected, reqs, tags []string
		for _, t := range p.Tags {
			tags = append(tags, t.Name)
			switch {
			case strings.HasPrefix(t.Name, tagStory):
				tc.StoryID = strings.TrimPrefix(t.Name, tagStory)
			case strings.HasPrefix(t.Name, tagReq):
				reqs = append(reqs, strings.TrimPrefix(t.Name, tagReq))
			case strings.HasPrefix(t.Name, tagPriority):
				tc.Priority = strings.TrimPrefix(t.Name, tagPriority)
			}
		}
		for _, s := range p.Steps {
			if s.Type == messages.PickleStepType_OUTCOME {
				expected = append(expected, s.Text)
			} else {
				action = append(action, s.Text)
			}
		}
		tc.StepAction = strings.Join(action, " | ")
		tc.StepExpected = strings.Join(expected, " | ")
		tc.RequirementID = strings.Join(reqs, ";")
		tc.Tags = strings.Join(tags, " ")
		cases = append(cases, tc)
	}
	return cases, nil
}
