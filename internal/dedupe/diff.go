package dedupe

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// WordDiff renders a compact word-level diff from kept to dropped. Removed
// words appear as [-...-] and added words as {+...+}. Whitespace differences
// are ignored.
func WordDiff(kept, dropped string) string {
	dmp := diffmatchpatch.New()
	a, b, words := dmp.DiffLinesToChars(onePerLine(kept), onePerLine(dropped))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), words)

	var out strings.Builder
	for _, d := range diffs {
		text := strings.Join(strings.Fields(d.Text), " ")
		if text == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			out.WriteString("[-" + text + "-]")
		case diffmatchpatch.DiffInsert:
			out.WriteString("{+" + text + "+}")
		default:
			out.WriteString(text)
		}
	}
	return out.String()
}

// onePerLine puts each word on its own line so the line-mode diff works on
// words.
func onePerLine(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, "\n") + "\n"
}
