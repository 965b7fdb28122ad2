package render

import (
	"encoding/json"

	"github.com/dshills/storytrace/internal/schema"
)

type jsonRenderer struct{}

func (r *jsonRenderer) Ext() string { return "json" }

func (r *jsonRenderer) Render(summary *schema.RunSummary) ([]byte, error) {
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
