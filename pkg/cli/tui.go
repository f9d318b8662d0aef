// Package cli provides terminal UI helpers for the microfirst tools:
// a bordered status frame for the device console and log capture for
// rendering slog output inside it.
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the console color scheme.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default amber theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#ffb000"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Value:  lipgloss.NewStyle(),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Field is one label/value row in the status pane.
type Field struct {
	Label string
	Value string
}

// StatusFrame renders the device console: a title bar, a fixed status
// pane of label/value rows, and a scrolling log pane showing the most
// recent lines.
type StatusFrame struct {
	Styles Styles
	Title  string
	Status string
	Fields []Field
	Log    []string
	Help   string
}

// Render renders one frame at the given terminal size.
func (f StatusFrame) Render(width, height int) string {
	if width < 20 || height < 8 {
		return "terminal too small"
	}
	bc := f.Styles.Border
	inner := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	title := f.Styles.Title.Render(f.Title)
	status := f.Styles.Help.Render("[" + f.Status + "]")
	pad := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+
		strings.Repeat(" ", pad)+" "+bc.Render("│"))

	for _, fld := range f.Fields {
		row := f.Styles.Label.Render(fld.Label+":") + " " + f.Styles.Value.Render(fld.Value)
		lines = append(lines, f.row(bc, row, width, inner))
	}

	lines = append(lines, f.separator(bc, "log", width))
	logHeight := height - len(lines) - 2
	if logHeight < 1 {
		logHeight = 1
	}
	start := 0
	if len(f.Log) > logHeight {
		start = len(f.Log) - logHeight
	}
	for _, l := range f.Log[start:] {
		lines = append(lines, f.row(bc, f.Styles.Value.Render(l), width, inner))
	}
	for i := len(f.Log) - start; i < logHeight; i++ {
		lines = append(lines, f.row(bc, "", width, inner))
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	lines = append(lines, f.Styles.Help.Render(f.Help))
	return strings.Join(lines, "\n")
}

func (f StatusFrame) row(bc lipgloss.Style, content string, width, inner int) string {
	if lipgloss.Width(content) > inner {
		content = truncate(content, inner)
	}
	pad := max(0, width-4-lipgloss.Width(content))
	return bc.Render("│") + " " + content + strings.Repeat(" ", pad) + " " + bc.Render("│")
}

func (f StatusFrame) separator(bc lipgloss.Style, label string, width int) string {
	l := f.Styles.Label.Render(label)
	pad := max(0, width-3-lipgloss.Width(l))
	return bc.Render("├─") + l + bc.Render(strings.Repeat("─", pad-1)+"┤")
}

// truncate cuts a styled string to the given display width. Crude on
// multi-byte runes but the log pane only carries slog text output.
func truncate(s string, w int) string {
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	return string(r[:w])
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
