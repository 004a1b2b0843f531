// Package printer renders user-facing CLI lines with the bright
// red/green/cyan palette. Diagnostic logging stays on the structured logger;
// everything a person is meant to read goes through here.
package printer

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Printer writes to a single io.Writer so commands stay testable.
type Printer struct {
	out     io.Writer
	info    *color.Color
	success *color.Color
	failure *color.Color
}

// New returns a Printer writing to out.
func New(out io.Writer) *Printer {
	return &Printer{
		out:     out,
		info:    color.New(color.FgHiCyan),
		success: color.New(color.FgHiGreen),
		failure: color.New(color.FgHiRed),
	}
}

// Infof prints an informational line in cyan.
func (p *Printer) Infof(format string, args ...interface{}) {
	p.info.Fprintf(p.out, format+"\n", args...)
}

// Successf prints a success line in green.
func (p *Printer) Successf(format string, args ...interface{}) {
	p.success.Fprintf(p.out, format+"\n", args...)
}

// Failf prints a failure line in red.
func (p *Printer) Failf(format string, args ...interface{}) {
	p.failure.Fprintf(p.out, format+"\n", args...)
}

// Plainf prints an uncolored line.
func (p *Printer) Plainf(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Writer exposes the underlying writer for table rendering.
func (p *Printer) Writer() io.Writer {
	return p.out
}
