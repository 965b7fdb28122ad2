// Package segment splits normalized document text into atomic requirements
// and infers an epic for each one from the document's numbered headings.
package segment

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/storytrace/internal/normalize"
	"github.com/dshills/storytrace/internal/schema"
)

var (
	headingPattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+([A-Z][\w\s-]+.*)$`)
	bulletPattern  = regexp.MustCompile(`^\s*[-*•]\s+`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// genericHeadings are container titles that never make a useful epic.
var genericHeadings = map[string]bool{
	"introduction":                true,
	"purpose":                     true,
	"scope":                       true,
	"functional requirements":     true,
	"non-functional requirements": true,
	"references":                  true,
	"appendix":                    true,
}

// ExtractHeadings scans text for "<dotted-id> <Title>" lines and returns
// id → title, skipping generic section titles.
func ExtractHeadings(text string) map[string]string {
	headings := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		m := headingPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[2])
		if genericHeadings[strings.ToLower(title)] {
			continue
		}
		headings[m[1]] = title
	}
	return headings
}

// AssignEpic returns the title of the longest heading id that is a string
// prefix of reqID, or schema.DefaultEpic when none matches.
func AssignEpic(reqID string, headings map[string]string) string {
	ids := make([]string, 0, len(headings))
	for id := range headings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) > len(ids[j])
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		if strings.HasPrefix(reqID, id) {
			return headings[id]
		}
	}
	return schema.DefaultEpic
}

// Split segments text into requirements in document order. A line starting
// with a requirement id (REQ-n or dotted numeric) or a bullet starts a new
// requirement; other lines are appended to the current one. Lines before
// the first marker are collected under an AUTO-<n> id.
func Split(text string) []schema.Requirement {
	headings := ExtractHeadings(text)

	var (
		reqs []schema.Requirement
		cur  *schema.Requirement
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(whitespace.ReplaceAllString(cur.Text, " "))
		if cur.Text != "" {
			cur.Epic = AssignEpic(cur.ReqID, headings)
			reqs = append(reqs, *cur)
		}
		cur = nil
	}
	autoID := func() string { return fmt.Sprintf("AUTO-%d", len(reqs)+1) }

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if loc := normalize.RequirementIDPattern.FindStringIndex(line); loc != nil {
			flush()
			content := strings.TrimSpace(line[loc[1]:])
			if content == "" {
				content = line
			}
			cur = &schema.Requirement{ReqID: line[loc[0]:loc[1]], Text: content}
			continue
		}
		if bulletPattern.MatchString(line) {
			flush()
			cur = &schema.Requirement{ReqID: autoID(), Text: line}
			continue
		}

		if cur != nil {
			cur.Text += " " + line
		} else {
			cur = &schema.Requirement{ReqID: autoID(), Text: line}
		}
	}
	flush()
	return reqs
}
