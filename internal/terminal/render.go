// Package terminal is the interactive chat surface: a line-based REPL that
// drives the answering workflow in-process and renders answers as markdown
// when attached to a terminal.
package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// ANSI codes, emitted only when attached to a terminal.
const (
	colorReset  = "\033[0m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// StdoutIsTTY reports whether stdout is attached to a terminal.
func StdoutIsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Renderer writes chat output. On a TTY answers go through glamour and
// status lines are colored; otherwise everything is plain text.
type Renderer struct {
	out      io.Writer
	isTTY    bool
	markdown *glamour.TermRenderer
}

// NewRenderer creates a Renderer on out. isTTY selects markdown rendering
// and color.
func NewRenderer(out io.Writer, isTTY bool) *Renderer {
	r := &Renderer{out: out, isTTY: isTTY}
	if isTTY {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || width <= 0 {
			width = 100
		}
		if width > 120 {
			width = 120
		}
		// A nil renderer falls back to plain text.
		r.markdown, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-4),
		)
	}
	return r
}

// IsTTY reports whether the renderer targets a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Answer renders an assistant answer.
func (r *Renderer) Answer(text string) {
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(text); err == nil {
			fmt.Fprint(r.out, rendered)
			return
		}
	}
	fmt.Fprintln(r.out, text)
}

// Chunk writes streamed answer text without a trailing newline.
func (r *Renderer) Chunk(text string) {
	fmt.Fprint(r.out, text)
}

// Welcome prints the startup banner.
func (r *Renderer) Welcome(model string) {
	r.colored(colorCyan, fmt.Sprintf("answerd chat — model %s", model))
	r.colored(colorDim, "Ask anything. /new starts a fresh session, /history shows this one, /quit exits.")
	fmt.Fprintln(r.out)
}

// Goodbye prints the exit line.
func (r *Renderer) Goodbye() {
	r.colored(colorCyan, "Bye.")
}

// Prompt prints the input prompt.
func (r *Renderer) Prompt() {
	if r.isTTY {
		fmt.Fprintf(r.out, "%s> %s", colorGreen, colorReset)
		return
	}
	fmt.Fprint(r.out, "> ")
}

// Status prints a dim informational line, such as research activity.
func (r *Renderer) Status(msg string) {
	r.colored(colorDim, msg)
}

// Warn prints a warning line.
func (r *Renderer) Warn(msg string) {
	r.colored(colorYellow, "warning: "+msg)
}

// Error prints an error line.
func (r *Renderer) Error(err error) {
	r.colored(colorRed, "error: "+err.Error())
}

// Transcript prints prior turns of the session.
func (r *Renderer) Transcript(lines []string) {
	if len(lines) == 0 {
		r.colored(colorDim, "(no history yet)")
		return
	}
	for _, line := range lines {
		fmt.Fprintln(r.out, line)
	}
}

func (r *Renderer) colored(color, msg string) {
	if r.isTTY {
		fmt.Fprintf(r.out, "%s%s%s\n", color, msg, colorReset)
		return
	}
	fmt.Fprintln(r.out, strings.TrimSpace(msg))
}
