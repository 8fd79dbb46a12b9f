package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-looper/looper"
	"go-looper/theme"
)

// SlotColumns is the width of the slot grid; 128 notes make 8 rows.
const SlotColumns = 16

// RenderSlotGrid draws every loop slot, lowest note top-left. cursor is
// highlighted; pulse marks the pulse loop.
func RenderSlotGrid(th *theme.Theme, loops []looper.LoopInfo, pulse, cursor int) string {
	byNote := make(map[int]looper.LoopInfo, len(loops))
	for _, info := range loops {
		byNote[info.Note] = info
	}

	cursorStyle := lipgloss.NewStyle().Foreground(th.Cursor()).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(th.Muted())

	var lines []string
	for row := 0; row*SlotColumns < looper.NumNotes; row++ {
		var line strings.Builder
		line.WriteString(labelStyle.Render(fmt.Sprintf("%3d ", row*SlotColumns)))
		for col := 0; col < SlotColumns; col++ {
			note := row*SlotColumns + col
			info, ok := byNote[note]
			if !ok {
				info = looper.LoopInfo{Note: note}
			}
			sym := string(th.LoopSymbol(info, note == pulse))
			cell := lipgloss.NewStyle().Foreground(th.LoopColor(info, note == pulse)).Render(sym)
			if note == cursor {
				line.WriteString(cursorStyle.Render(string(th.Symbols.Cursor)))
			} else {
				line.WriteString(" ")
			}
			line.WriteString(cell)
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// RenderMeter draws a progress bar of width cells for v in [0,1]. Filled
// cells run from the muted to the success color, so a pulse meter warms up
// as the boundary approaches.
func RenderMeter(th *theme.Theme, v float64, width int) string {
	v = min(max(v, 0), 1)
	filled := int(v*float64(width) + 0.5)

	var out strings.Builder
	for i, c := range th.Palette.Gradient(theme.RoleMuted, theme.RoleSuccess, width) {
		if i >= filled {
			break
		}
		out.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render(string(th.Symbols.Solid)))
	}
	out.WriteString(lipgloss.NewStyle().Foreground(th.Muted()).Render(strings.Repeat(string(th.Symbols.Empty), width-filled)))
	return out.String()
}

// StateLegend explains the slot colors.
func StateLegend(th *theme.Theme) string {
	items := []struct {
		info  looper.LoopInfo
		pulse bool
		name  string
		desc  string
	}{
		{looper.LoopInfo{State: looper.LoopRecording}, false, "rec", "recording"},
		{looper.LoopInfo{State: looper.LoopPlaying, Ready: true}, false, "play", "playing"},
		{looper.LoopInfo{State: looper.LoopStopped, Ready: true}, false, "ready", "recorded, not playing"},
		{looper.LoopInfo{State: looper.LoopPlaying, Ready: true}, true, "pulse", "sync reference loop"},
	}
	var lines []string
	for _, it := range items {
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(th.LoopRGB(it.info, it.pulse).Hex()))
		sym := string(th.LoopSymbol(it.info, it.pulse))
		lines = append(lines, fmt.Sprintf("  %s %s - %s", swatch.Render(sym), it.name, it.desc))
	}
	return strings.Join(lines, "\n")
}
