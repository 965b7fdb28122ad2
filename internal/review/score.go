// Package review scores how well a generated story's cited evidence lines up
// with the requirement it came from, and flags weak stories for human review.
package review

import (
	"math"
	"regexp"
	"strings"

	"github.com/dshills/storytrace/internal/schema"
)

// DefaultMinAlignment is the Jaccard ratio at or above which a cited story is aligned.
const DefaultMinAlignment = 0.15

var termPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

var stopWords = map[string]bool{
	"the": true, "and": true, "of": true, "to": true, "in": true, "a": true,
	"for": true, "on": true, "with": true, "by": true, "is": true, "be": true,
	"as": true, "at": true, "or": true, "an": true, "from": true,
}

// KeyTerms returns the distinct lowercased tokens of s longer than two
// characters, excluding stop words.
func KeyTerms(s string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, tok := range termPattern.FindAllString(strings.ToLower(s), -1) {
		if len(tok) > 2 && !stopWords[tok] {
			terms[tok] = struct{}{}
		}
	}
	return terms
}

// Score computes the Jaccard index between the requirement's key terms and
// the union of key terms across all citation snippets. Either side empty
// scores 0.
func Score(reqText string, citations []schema.Citation) float64 {
	req := KeyTerms(reqText)
	ctx := make(map[string]struct{})
	for _, c := range citations {
		for t := range KeyTerms(c.Snippet) {
			ctx[t] = struct{}{}
		}
	}
	if len(req) == 0 || len(ctx) == 0 {
		return 0
	}

	inter := 0
	for t := range req {
		if _, ok := ctx[t]; ok {
			inter++
		}
	}
	union := len(req) + len(ctx) - inter
	return float64(inter) / float64(union)
}

// Aligned reports whether a story with the given score and citation count
// passes review. A story without citations never passes.
func Aligned(score float64, citations int, minScore float64) bool {
	return score >= minScore && citations > 0
}

// Counts tallies the outcome of an Apply pass.
type Counts struct {
	Aligned     int
	NeedsReview int
}

// Apply scores every story against its first source requirement and sets
// AlignmentScore (rounded to 3 decimals) and NeedsReview in place. Stories
// whose requirement is unknown are scored against empty text.
func Apply(stories []schema.Story, reqs []schema.Requirement, minScore float64) Counts {
	byID := make(map[string]string, len(reqs))
	for _, r := range reqs {
		if _, dup := byID[r.ReqID]; !dup {
			byID[r.ReqID] = r.Text
		}
	}

	var c Counts
	for i := range stories {
		s := &stories[i]
		score := Score(byID[s.PrimaryRequirementID()], s.Citations)
		ok := Aligned(score, len(s.Citations), minScore)
		s.AlignmentScore = Round(score, 3)
		s.NeedsReview = !ok
		if ok {
			c.Aligned++
		} else {
			c.NeedsReview++
		}
	}
	return c
}

// Round rounds x to the given number of decimal places.
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
