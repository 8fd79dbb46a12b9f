package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-looper/theme"
)

// Pad is one lit cell of a Launchpad frame. Row 8 is the control row and
// column 8 the scene column.
type Pad struct {
	Row, Col int
	Color    theme.RGB
	Blink    bool
}

// PadMirror draws a Launchpad frame the way the device shows it: control
// row on top, grid row 0 at the bottom, scene column on the right. Pads
// missing from pads, or black, are drawn unlit.
func PadMirror(th *theme.Theme, pads []Pad) string {
	var cells [9][9]*Pad
	for i := range pads {
		p := &pads[i]
		if p.Row < 0 || p.Row > 8 || p.Col < 0 || p.Col > 8 || p.Color == (theme.RGB{}) {
			continue
		}
		cells[p.Row][p.Col] = p
	}

	unlit := lipgloss.NewStyle().Foreground(th.Muted()).Render(string(th.Symbols.Empty))
	lines := make([]string, 0, 9)
	for row := 8; row >= 0; row-- {
		var line strings.Builder
		for col := 0; col <= 8; col++ {
			if col > 0 {
				line.WriteString(" ")
			}
			if row == 8 && col == 8 {
				line.WriteString(" ")
				continue
			}
			p := cells[row][col]
			if p == nil {
				line.WriteString(unlit)
				continue
			}
			sym := th.Symbols.Solid
			if p.Blink {
				sym = th.Symbols.SlotRecording
			}
			line.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color.Hex())).Render(string(sym)))
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
