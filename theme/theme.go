package theme

import (
	"github.com/charmbracelet/lipgloss"

	"go-looper/looper"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Launchpad help widget
	Solid rune // ■ active/has function
	Empty rune // □ inactive/no function

	// Slot grid
	SlotEmpty     rune // · nothing recorded
	SlotReady     rune // ○ recorded, idle or stopped
	SlotPlaying   rune // ▶ playing
	SlotRecording rune // ● recording
	SlotPulse     rune // ◆ pulse loop marker
	Cursor        rune // ▸ selected slot
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = DefaultPalette()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Solid: '■',
			Empty: '□',

			SlotEmpty:     '·',
			SlotReady:     '○',
			SlotPlaying:   '▶',
			SlotRecording: '●',
			SlotPulse:     '◆',
			Cursor:        '▸',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0 // deep purple
	RoleSurface = 0.1 // dark purple
	RoleMuted   = 0.2 // purple-magenta
	RoleFG      = 0.4 // pink-purple (readable)
	RoleAccent  = 0.5 // vivid magenta
	RoleCursor  = 0.6 // rose pink
	RoleActive  = 0.7 // soft red
	RoleWarning = 0.8 // orange
	RoleSuccess = 1.0 // bright yellow
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Cursor() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleCursor))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

// RGB returns raw RGB for any normalized value (for Launchpad)
func (t *Theme) RGB(norm float64) RGB {
	return t.Palette.Lookup(norm)
}

// LoopRole picks the palette position for a slot. Empty slots return a
// negative role and should be drawn unlit.
func LoopRole(info looper.LoopInfo, pulse bool) float64 {
	switch info.State {
	case looper.LoopRecording:
		return RoleActive
	case looper.LoopPlaying:
		if pulse {
			return RoleSuccess
		}
		return RoleWarning
	}
	if !info.Ready {
		return -1
	}
	if pulse {
		return RoleAccent
	}
	return RoleMuted
}

// LoopRGB is the pad color for a slot; empty slots are black.
func (t *Theme) LoopRGB(info looper.LoopInfo, pulse bool) RGB {
	role := LoopRole(info, pulse)
	if role < 0 {
		return RGB{}
	}
	return t.Palette.Lookup(role)
}

// LoopColor is LoopRGB for the terminal; empty slots use the surface color.
func (t *Theme) LoopColor(info looper.LoopInfo, pulse bool) lipgloss.Color {
	role := LoopRole(info, pulse)
	if role < 0 {
		role = RoleSurface
	}
	return t.Color(role)
}

// LoopSymbol returns the grid glyph for a slot.
func (t *Theme) LoopSymbol(info looper.LoopInfo, pulse bool) rune {
	switch {
	case info.State == looper.LoopRecording:
		return t.Symbols.SlotRecording
	case pulse && info.Ready:
		return t.Symbols.SlotPulse
	case info.State == looper.LoopPlaying:
		return t.Symbols.SlotPlaying
	case info.Ready:
		return t.Symbols.SlotReady
	}
	return t.Symbols.SlotEmpty
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(c.Hex())
}
