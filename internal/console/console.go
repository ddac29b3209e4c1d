// Package console renders the human-facing diagnostic lines printed while
// interrupts are dispatched. Output is best-effort and not a contract.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const separatorWidth = 100

// Theme holds the styles used for console lines.
type Theme struct {
	Separator lipgloss.Style
	Title     lipgloss.Style
	Info      lipgloss.Style
	Prompt    lipgloss.Style
	Success   lipgloss.Style
	Warn      lipgloss.Style
	Error     lipgloss.Style
}

func newTheme(r *lipgloss.Renderer) Theme {
	return Theme{
		Separator: r.NewStyle().Foreground(lipgloss.Color("#874BFD")),
		Title:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Info:      r.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
		Prompt:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5C07B")),
		Success:   r.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Warn:      r.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Error:     r.NewStyle().Foreground(lipgloss.Color("#FF0000")),
	}
}

// Printer writes styled lines to w. Safe for concurrent use.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	theme Theme
}

// New returns a Printer whose color profile follows w, so plain buffers get
// unstyled text.
func New(w io.Writer) *Printer {
	return &Printer{
		w:     w,
		theme: newTheme(lipgloss.NewRenderer(w)),
	}
}

// Discard returns a Printer that drops everything.
func Discard() *Printer { return New(io.Discard) }

func (p *Printer) line(style lipgloss.Style, prefix, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, style.Render(prefix+" "+msg))
}

// Banner prints the separator block that opens each interrupt.
func (p *Printer) Banner(kind string, priority int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.theme.Separator.Render(strings.Repeat("=", separatorWidth)))
	fmt.Fprintln(p.w, p.theme.Title.Render(fmt.Sprintf("> Processing interrupt: %s (priority %d)", kind, priority)))
}

func (p *Printer) Info(format string, args ...any) {
	if p != nil {
		p.line(p.theme.Info, ">", format, args...)
	}
}

func (p *Printer) Prompt(format string, args ...any) {
	if p != nil {
		p.line(p.theme.Prompt, "<", format, args...)
	}
}

func (p *Printer) Success(format string, args ...any) {
	if p != nil {
		p.line(p.theme.Success, ">", format, args...)
	}
}

func (p *Printer) Warn(format string, args ...any) {
	if p != nil {
		p.line(p.theme.Warn, ">", format, args...)
	}
}

func (p *Printer) Error(format string, args ...any) {
	if p != nil {
		p.line(p.theme.Error, ">", format, args...)
	}
}

// Summary prints the closing block shown when the program finishes.
func (p *Printer) Summary(format string, args ...any) {
	if p == nil {
		return
	}
	p.mu.Lock()
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.theme.Separator.Render(strings.Repeat("=", separatorWidth)))
	p.mu.Unlock()
	p.line(p.theme.Success, ">", format, args...)
}
