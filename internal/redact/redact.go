// Package redact masks secrets and patient identifiers before text is sent
// to a model provider.
package redact

import (
	"regexp"
	"strings"

	"github.com/dshills/storytrace/internal/schema"
)

const redacted = "[REDACTED]"

// pemPattern matches PEM key blocks across multiple lines.
var pemPattern = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+KEY-----.*?-----END [A-Z ]+KEY-----`)

// rule is one kind of sensitive value and the pattern that finds it.
type rule struct {
	kind string
	re   *regexp.Regexp
}

// rules are single-line detectors, applied in order.
var rules = []rule{
	{"aws_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	// sk- keys only at a word start, so "task-..." identifiers survive.
	{"api_key", regexp.MustCompile(`(?:^|\s|["'])sk-[a-zA-Z0-9]{20,}`)},
	{"jwt", regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)},
	// At least 20 token characters; "Bearer of the record" is prose.
	{"bearer", regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]{20,}=*`)},
	{"password", regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`)},
	// Medical record numbers, only when labelled.
	{"mrn", regexp.MustCompile(`(?i)\bMRN[ \t]*[:#]?[ \t]*[A-Z]*\d[A-Z0-9-]{3,}`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{"phone", regexp.MustCompile(`(?:\+1[ .-]?)?\(?\b\d{3}\)?[ .-]\d{3}[ .-]\d{4}\b`)},
}

// Redact replaces secrets and PHI-like identifiers in input with
// [REDACTED]. The output has as many newlines as the input.
func Redact(input string) string {
	input = pemPattern.ReplaceAllStringFunc(input, func(match string) string {
		lines := strings.Split(match, "\n")
		for i := range lines {
			lines[i] = redacted
		}
		return strings.Join(lines, "\n")
	})
	for _, r := range rules {
		input = r.re.ReplaceAllString(input, redacted)
	}
	return input
}

// Kinds lists the kinds of sensitive value found in input, in rule order,
// with "pem" first when a key block is present.
func Kinds(input string) []string {
	var kinds []string
	if pemPattern.MatchString(input) {
		kinds = append(kinds, "pem")
	}
	for _, r := range rules {
		if r.re.MatchString(input) {
			kinds = append(kinds, r.kind)
		}
	}
	return kinds
}

// Citations returns a copy of cs with every snippet redacted.
func Citations(cs []schema.Citation) []schema.Citation {
	if cs == nil {
		return nil
	}
	out := make([]schema.Citation, len(cs))
	for i, c := range cs {
		out[i] = schema.Citation{Page: c.Page, Snippet: Redact(c.Snippet)}
	}
	return out
}
