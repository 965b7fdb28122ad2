// Package normalize cleans raw extracted document text before segmentation.
package normalize

import (
	"regexp"
	"strings"

	"github.com/dshills/storytrace/internal/schema"
)

var (
	// BulletPattern matches list markers: "- ", "• ", "1.", "(a)".
	BulletPattern = regexp.MustCompile(`^\s*([\-•·◦*] |\d+\.|\([a-zA-Z0-9]\))`)
	// HeadingPattern matches heading lines where every word is capitalized,
	// e.g. "FUNCTIONAL REQUIREMENTS" or "Clinician Portal".
	HeadingPattern = regexp.MustCompile(`^\s{0,3}([A-Z][\w\-/]*(?:[ \t]+[A-Z0-9][\w\-/]*)*)\s*$`)
	// RequirementIDPattern matches a requirement identifier at line start:
	// "REQ-n" or a dotted or bare section number. Segmentation starts a new
	// requirement on exactly these lines.
	RequirementIDPattern = regexp.MustCompile(`^(REQ[-\s]?\d+|[0-9]+(?:\.[0-9]+)*)\b`)

	hyphenBreak = regexp.MustCompile(`(\w)-\n(\w)`)
	blankRun    = regexp.MustCompile(`\n{3,}`)
)

// Text normalizes a whole document: hyphenated line breaks are joined,
// non-breaking spaces collapsed, soft-wrapped lines merged into paragraphs,
// and runs of 3+ newlines reduced to one blank line. Bullet, heading and
// requirement-id lines are kept as standalone lines.
func Text(raw string) string {
	if raw == "" {
		return ""
	}

	text := strings.NewReplacer("\r\n", "\n", "\r", "\n", "\u00a0", " ").Replace(raw)
	text = hyphenBreak.ReplaceAllString(text, "$1$2")

	lines := strings.Split(text, "\n")
	merged := make([]string, 0, len(lines))
	var buf []string
	flush := func() {
		if len(buf) > 0 {
			merged = append(merged, strings.Join(buf, " "))
			buf = buf[:0]
		}
	}

	for _, ln := range lines {
		s := strings.TrimRight(ln, " \t")
		if strings.TrimSpace(s) == "" {
			flush()
			merged = append(merged, "")
			continue
		}
		if IsStandalone(s) {
			flush()
			merged = append(merged, strings.TrimSpace(s))
			continue
		}
		buf = append(buf, strings.TrimSpace(s))
	}
	flush()

	out := strings.Join(merged, "\n")
	out = blankRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// IsStandalone reports whether a line must not be merged into a paragraph.
func IsStandalone(line string) bool {
	return BulletPattern.MatchString(line) ||
		IsHeading(line) ||
		RequirementIDPattern.MatchString(strings.TrimSpace(line))
}

// IsHeading reports whether line is a heading of at least 4 characters.
func IsHeading(line string) bool {
	m := HeadingPattern.FindStringSubmatch(line)
	return m != nil && len(m[1]) >= 4
}

// Pages normalizes each page independently, keeping page numbers.
func Pages(pages []schema.Page) []schema.Page {
	out := make([]schema.Page, len(pages))
	for i, p := range pages {
		out[i] = schema.Page{Number: p.Number, Text: Text(p.Text)}
	}
	return out
}

// Join concatenates page texts with newlines in page order.
func Join(pages []schema.Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n")
}
