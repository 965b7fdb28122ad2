package console

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_Lines(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	p := New(&buf)
	p.Title("extract %s", "srs.pdf")
	p.Progress(2, 5, "generating stories")
	p.Success("wrote %d stories", 3)
	p.Warn("2 stories need review")
	p.Error("boom")
	p.Info("done")

	assert.Equal(t, "» extract srs.pdf\n[2/5] generating stories\n✔ wrote 3 stories\n! 2 stories need review\n✖ boom\n  done\n", buf.String())
}

func TestPrinter_NilIsSilent(t *testing.T) {
	var p *Printer
	p.Success("nothing")
	p.Separator()
	New(nil).Info("nothing")
}
