// Package testcase turns stories into Gherkin feature files and test case
// rows, and loads test cases produced elsewhere.
package testcase

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/dshills/storytrace/internal/schema"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Tag prefixes used in generated feature files.
const (
	tagPriority = "@priority_"
	tagReq      = "@req_"
	tagStory    = "@story_"
)

// Options configures Generate.
type Options struct {
	// PerStory writes one feature file per story instead of one per epic.
	PerStory bool
}

// Feature is one generated .feature file.
type Feature struct {
	Name     string // feature title
	FileName string // base name, unique within a Result
	Content  []byte
}

// Result is the output of Generate.
type Result struct {
	Features []Feature
	Cases    []schema.TestCase
	// Gaps lists requirement ids backed by no scenario, sorted.
	Gaps []string
}

// Generate writes one Scenario per acceptance criterion, grouped into
// features by epic (or by story), and one test case row per acceptance
// criterion. A story without acceptance criteria still yields one row. Every
// feature is parsed back with the Gherkin parser; a parse failure is an error.
func Generate(stories []schema.Story, opts Options) (*Result, error) {
	res := &Result{Cases: []schema.TestCase{}}

	var order []string
	groups := make(map[string][]*schema.Story)
	for i := range stories {
		s := &stories[i]
		key := strings.TrimSpace(s.Epic)
		if key == "" {
			key = schema.DefaultEpic
		}
		if opts.PerStory {
			key = s.StoryID
			if key == "" {
				key = "Story"
			}
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}

	used := make(map[string]int)
	for _, key := range order {
		content := featureText(key, groups[key])
		if _, err := gherkin.ParseGherkinDocument(bytes.NewReader(content), (&messages.Incrementing{}).NewId); err != nil {
			return nil, fmt.Errorf("generated feature %q does not parse: %w", key, err)
		}
		name := safeName(key, "feature")
		used[name]++
		if n := used[name]; n > 1 {
			name += "_" + strconv.Itoa(n)
		}
		res.Features = append(res.Features, Feature{Name: key, FileName: name + ".feature", Content: content})
	}

	for i := range stories {
		res.Cases = append(res.Cases, rows(&stories[i])...)
	}
	res.Gaps = Gaps(stories)
	return res, nil
}

func featureText(name string, stories []*schema.Story) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Feature: %s\n\n", oneLine(name, "User Stories"))
	for _, s := range stories {
		fmt.Fprintf(&b, "  # %s\n", oneLine(s.UserStory, ""))
		tags := strings.Join(Tags(s), " ")
		for i, ac := range s.AcceptanceCriteria {
			fmt.Fprintf(&b, "  %s\n", tags)
			fmt.Fprintf(&b, "  Scenario: %s\n", safeName(scenarioID(s, i), "Scenario"))
			fmt.Fprintf(&b, "    Given %s\n", oneLine(ac.Given, "<given TBD>"))
			fmt.Fprintf(&b, "    When %s\n", oneLine(ac.When, "<when TBD>"))
			fmt.Fprintf(&b, "    Then %s\n\n", oneLine(ac.Then, "<then TBD>"))
		}
	}
	return []byte(b.String())
}

// Tags returns the scenario tags of a story: priority, requirements, story id
// and detected compliance standards.
func Tags(s *schema.Story) []string {
	p := strings.Join(strings.Fields(string(s.Priority)), "")
	if p == "" {
		p = "Unspecified"
	}
	tags := []string{tagPriority + safeName(p, "Unspecified")}
	for _, id := range s.SourceRequirementIDs {
		if id != "" {
			tags = append(tags, tagReq+safeName(id, "-"))
		}
	}
	if s.StoryID != "" {
		tags = append(tags, tagStory+safeName(s.StoryID, "S"))
	}
	for _, c := range ComplianceTags(s) {
		tags = append(tags, "@"+c)
	}
	return tags
}

// ComplianceTags names the standards mentioned in a story's non-functional
// notes or citation snippets, sorted.
func ComplianceTags(s *schema.Story) []string {
	parts := append([]string(nil), s.NonFunctional...)
	for _, c := range s.Citations {
		parts = append(parts, c.Snippet)
	}
	blob := strings.ToLower(strings.Join(parts, " "))

	var tags []string
	if strings.Contains(blob, "hipaa") {
		tags = append(tags, "HIPAA")
	}
	for _, k := range []string{"21 cfr part 11", "21cfr part 11"} {
		if strings.Contains(blob, k) {
			tags = append(tags, "FDA21CFR11")
			break
		}
	}
	if strings.Contains(blob, "iso 13485") {
		tags = append(tags, "ISO13485")
	}
	if strings.Contains(blob, "iec 62304") {
		tags = append(tags, "IEC62304")
	}
	if strings.Contains(blob, "iso 27001") {
		tags = append(tags, "ISO27001")
	}
	sort.Strings(tags)
	return tags
}

func rows(s *schema.Story) []schema.TestCase {
	reqs := strings.Join(s.SourceRequirementIDs, ";")
	if reqs == "" {
		reqs = "-"
	}
	pages := make([]string, 0, len(s.Citations))
	for _, p := range s.Pages() {
		pages = append(pages, strconv.Itoa(p))
	}
	base := schema.TestCase{
		RequirementID: reqs,
		Priority:      string(s.Priority),
		Tags:          strings.Join(Tags(s), " "),
		Pages:         strings.Join(pages, ";"),
		StoryID:       s.StoryID,
		Epic:          s.Epic,
	}

	if len(s.AcceptanceCriteria) == 0 {
		tc := base
		tc.Title = title(s, "Generated Test")
		return []schema.TestCase{tc}
	}
	out := make([]schema.TestCase, len(s.AcceptanceCriteria))
	for i, ac := range s.AcceptanceCriteria {
		tc := base
		tc.Title = title(s, scenarioID(s, i))
		tc.StepAction = joinNonEmpty(" | ", ac.Given, ac.When)
		tc.StepExpected = ac.Then
		out[i] = tc
	}
	return out
}

// Gaps returns the requirement ids, sorted, whose stories have no acceptance
// criteria. Stories without sources count under "-".
func Gaps(stories []schema.Story) []string {
	count := make(map[string]int)
	for _, s := range stories {
		ids := s.SourceRequirementIDs
		if len(ids) == 0 {
			ids = []string{"-"}
		}
		for _, id := range ids {
			count[id] += len(s.AcceptanceCriteria)
		}
	}
	gaps := []string{}
	for id, n := range count {
		if n == 0 {
			gaps = append(gaps, id)
		}
	}
	sort.Strings(gaps)
	return gaps
}

// CSVHeader is the column layout of testcases.csv.
var CSVHeader = []string{"Test Case Title", "Step Action", "Step Expected", "Requirement ID", "Priority", "Tags", "Pages", "story_id", "Epic"}

// Records renders test cases for testcases.csv.
func Records(cases []schema.TestCase) [][]string {
	out := make([][]string, len(cases))
	for i, c := range cases {
		out[i] = []string{c.Title, c.StepAction, c.StepExpected, c.RequirementID, c.Priority, c.Tags, c.Pages, c.StoryID, c.Epic}
	}
	return out
}

func scenarioID(s *schema.Story, i int) string {
	id := s.StoryID
	if id == "" {
		id = "S"
	}
	return fmt.Sprintf("%s_AC%d", id, i+1)
}

func title(s *schema.Story, fallback string) string {
	if s.UserStory == "" {
		return fallback
	}
	r := []rune(s.UserStory)
	if len(r) > 255 {
		r = r[:255]
	}
	return string(r)
}

func safeName(s, def string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		return def
	}
	return s
}

func oneLine(s, def string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return def
	}
	return s
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
