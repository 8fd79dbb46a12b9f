package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-looper/theme"
)

type KeyBinding struct {
	Key  string
	Desc string
}

type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyHelp lays the sections out side by side.
func KeyHelp(th *theme.Theme, sections []KeySection) string {
	title := lipgloss.NewStyle().Foreground(th.FG()).Bold(true)
	key := lipgloss.NewStyle().Foreground(th.Accent())
	desc := lipgloss.NewStyle().Foreground(th.Muted())

	cols := make([]string, 0, len(sections))
	for i, sec := range sections {
		width := 0
		for _, k := range sec.Keys {
			width = max(width, lipgloss.Width(k.Key))
		}
		lines := []string{title.Render(sec.Title)}
		for _, k := range sec.Keys {
			lines = append(lines, key.Render(fmt.Sprintf("%-*s", width, k.Key))+"  "+desc.Render(k.Desc))
		}
		col := strings.Join(lines, "\n")
		if i < len(sections)-1 {
			col = lipgloss.NewStyle().PaddingRight(4).Render(col)
		}
		cols = append(cols, col)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

// KeyHint renders bindings on one line as key:desc.
func KeyHint(th *theme.Theme, short []KeyBinding) string {
	parts := make([]string, len(short))
	for i, k := range short {
		parts[i] = k.Key + ":" + k.Desc
	}
	return lipgloss.NewStyle().Foreground(th.Muted()).Render(strings.Join(parts, "  "))
}
