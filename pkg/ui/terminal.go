// Package ui prints the short human-facing lines of the command line:
// errors, notices and the end-of-run summary. Diagnostics go through
// pkg/logger instead.
package ui

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"
)

const (
	cyan    = "\033[36m"
	yellow  = "\033[33m"
	red     = "\033[31m"
	green   = "\033[32m"
	magenta = "\033[35m"
	reset   = "\033[0m"
)

// Console writes colored messages to w. Color is only used when w is a terminal.
type Console struct {
	w     io.Writer
	color bool
}

// NewConsole creates a Console on w.
func NewConsole(w io.Writer) *Console {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Console{w: w, color: color}
}

// SetColor forces color on or off.
func (c *Console) SetColor(on bool) {
	c.color = on
}

func (c *Console) paint(code, text string) string {
	if !c.color {
		return text
	}
	return code + text + reset
}

// Error prints an error message, with an optional detail after a colon
func (c *Console) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(c.w, c.paint(red, msg))
}

// Warning prints a warning message, with an optional detail after a colon
func (c *Console) Warning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(c.w, c.paint(yellow, msg))
}

func (c *Console) Success(msg string) {
	fmt.Fprintln(c.w, c.paint(green, msg))
}

func (c *Console) Info(label, value string) {
	fmt.Fprintf(c.w, "%s: %s\n", c.paint(cyan, label), c.paint(yellow, value))
}

func (c *Console) Highlight(msg string) {
	fmt.Fprintln(c.w, c.paint(magenta, msg))
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer {
	return c.w
}

// Println prints plain text.
func (c *Console) Println(a ...interface{}) {
	fmt.Fprintln(c.w, a...)
}

// Summary prints a titled two-column table.
func (c *Console) Summary(title string, rows [][2]string) {
	c.Highlight(title)
	tw := tabwriter.NewWriter(c.w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintf(tw, "  %s\t%s\n", row[0], row[1])
	}
	tw.Flush()
}
