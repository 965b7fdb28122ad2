// Package console prints human-facing progress lines. Structured diagnostics
// go to the slog logger instead.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	titleColor   = color.New(color.FgMagenta, color.Bold)
)

// Printer writes colored status lines to w. Color is disabled automatically
// when stdout is not a terminal or NO_COLOR is set. A nil Printer or one
// with a nil writer prints nothing.
type Printer struct {
	w io.Writer
}

// New returns a Printer writing to w.
func New(w io.Writer) *Printer { return &Printer{w: w} }

func (p *Printer) printf(c *color.Color, prefix, format string, args ...any) {
	if p == nil || p.w == nil {
		return
	}
	c.Fprintf(p.w, prefix+format+"\n", args...)
}

// Success prints a completed step.
func (p *Printer) Success(format string, args ...any) {
	p.printf(successColor, "✔ ", format, args...)
}

// Error prints a failure.
func (p *Printer) Error(format string, args ...any) {
	p.printf(errorColor, "✖ ", format, args...)
}

// Warn prints a recoverable problem.
func (p *Printer) Warn(format string, args ...any) {
	p.printf(warningColor, "! ", format, args...)
}

// Info prints a neutral status line.
func (p *Printer) Info(format string, args ...any) {
	p.printf(infoColor, "  ", format, args...)
}

// Title prints a stage header.
func (p *Printer) Title(format string, args ...any) {
	p.printf(titleColor, "» ", format, args...)
}

// Progress prints a counted step such as "[2/5] generating stories".
func (p *Printer) Progress(current, total int, msg string) {
	p.printf(infoColor, "", "[%d/%d] %s", current, total, msg)
}

// Separator prints a horizontal rule.
func (p *Printer) Separator() {
	if p == nil || p.w == nil {
		return
	}
	fmt.Fprintln(p.w, strings.Repeat("─", 60))
}
