// Package report contains the formatters that turn supervisor
// callbacks into test output: the default libtest-style formatter, a
// TAP producer and a JSON event stream.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/dfinity-lab/raclette/core"
)

const (
	styleRed    = "\033[31m"
	styleGreen  = "\033[32m"
	styleYellow = "\033[33m"
	styleBold   = "\033[1m"
	styleReset  = "\033[0m"
)

// Writer wraps the report output stream with optional ANSI color.
type Writer struct {
	out   io.Writer
	color bool
}

// NewWriter wraps out. With WhenAuto, color is used iff out is a
// terminal.
func NewWriter(out io.Writer, when core.When) *Writer {
	w := &Writer{out: out}
	switch when {
	case core.WhenAlways:
		w.color = true
	case core.WhenAuto:
		if f, ok := out.(*os.File); ok {
			w.color = isatty.IsTerminal(f.Fd())
		}
	}
	return w
}

func (w *Writer) Printf(format string, args ...any) {
	fmt.Fprintf(w.out, format, args...)
}

// Styled prints with the given ANSI style if color is enabled.
func (w *Writer) Styled(style, format string, args ...any) {
	if w.color {
		fmt.Fprintf(w.out, style+format+styleReset, args...)
	} else {
		fmt.Fprintf(w.out, format, args...)
	}
}

// New picks the reporter selected by the configuration, writing to
// stdout.
func New(cfg *core.Config) core.Reporter {
	w := NewWriter(os.Stdout, cfg.Color)
	switch cfg.Format {
	case core.FormatTap:
		return NewTap(w)
	case core.FormatJSON:
		return NewJSON(os.Stdout)
	default:
		return NewLibTest(w)
	}
}
