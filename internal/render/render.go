// Package render formats a run summary for humans or machines.
package render

import (
	"fmt"

	"github.com/dshills/storytrace/internal/schema"
)

// Renderer formats a RunSummary into bytes for output.
type Renderer interface {
	Render(summary *schema.RunSummary) ([]byte, error)
	// Ext is the file extension, without the dot, of the rendered output.
	Ext() string
}

// NewRenderer returns a Renderer for the given format string.
// Supported formats: "json" (default), "md".
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "json", "":
		return &jsonRenderer{}, nil
	case "md":
		return &markdownRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q: supported formats are json, md", format)
	}
}
