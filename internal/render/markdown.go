package render

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/dshills/storytrace/internal/schema"
)

type markdownRenderer struct{}

var mdTemplate = template.Must(template.New("summary").Parse(`# Storytrace Run Summary

**Document:** {{ .Input.Document }}{{ if .Input.Pages }} ({{ .Input.Pages }} pages){{ end }}
**Hash:** ` + "`{{ .Input.DocumentHash }}`" + `
**Profile:** {{ .Input.Profile }}{{ if .Input.TestMode }} | **Test mode**{{ end }}

---

## Counts

| stage | count |
|---|---|
| requirements | {{ .Counts.Requirements }} |
| generated stories | {{ .Counts.GeneratedStories }} |
| aligned | {{ .Counts.Aligned }} |
| needs review | {{ .Counts.NeedsReview }} |
| duplicate pairs | {{ .Counts.DuplicatePairs }} |
| duplicates dropped | {{ .Counts.DuplicatesDropped }} |
| final stories | {{ .Counts.FinalStories }} |

## Outcomes

| outcome | requirements |
|---|---|
| generated | {{ .Outcomes.Generated }} |
| abstained | {{ .Outcomes.Abstained }} |
| malformed | {{ .Outcomes.Malformed }} |
| invalid | {{ .Outcomes.Invalid }} |
| timed out | {{ .Outcomes.TimedOut }} |
| failed | {{ .Outcomes.Failed }} |

---
*Dedupe: {{ if .Input.Dedupe }}on (threshold {{ .Input.DupThreshold }}){{ else }}off{{ end }} | Min alignment: {{ .Input.MinAlignment }}*
*Model: {{ .Meta.Model }} | Embeddings: {{ .Meta.EmbedModel }} | Temperature: {{ .Meta.Temperature }}*
*{{ .Tool }} {{ .Version }}*
`))

func (r *markdownRenderer) Ext() string { return "md" }

func (r *markdownRenderer) Render(summary *schema.RunSummary) ([]byte, error) {
	var buf bytes.Buffer
	if err := mdTemplate.Execute(&buf, summary); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.Bytes(), nil
}
