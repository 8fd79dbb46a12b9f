package theme

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

//go:embed default.gpl
var defaultGPL []byte

// RGB is a color as sent to the pads: 8 bits per channel.
type RGB [3]uint8

// Hex formats c as #rrggbb for lipgloss.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// Palette is an ordered color ramp. Roles and loop states pick positions
// along it in [0, 1].
type Palette struct {
	Name   string
	Colors []RGB
}

// DefaultPalette returns the built-in palette.
func DefaultPalette() *Palette {
	p, err := ParseGPL(bytes.NewReader(defaultGPL), "default.gpl")
	if err != nil {
		panic(err)
	}
	return p
}

// LoadGPL reads a GIMP palette file.
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open palette")
	}
	defer f.Close()
	return ParseGPL(f, path)
}

// ParseGPL reads a GIMP palette. The "GIMP Palette" header is required and
// every color line must hold three values in 0-255; anything after them on
// the line is the color name and is ignored. name is used in errors only.
func ParseGPL(r io.Reader, name string) (*Palette, error) {
	p := &Palette{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	header := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || line[0] == '#':
			continue
		case !header:
			if line != "GIMP Palette" {
				return nil, errors.Errorf("%s: not a GIMP palette", name)
			}
			header = true
			continue
		case strings.HasPrefix(line, "Name:"):
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		case strings.HasPrefix(line, "Columns:"):
			continue
		}

		c, err := parseColor(line)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", name, lineNo)
		}
		p.Colors = append(p.Colors, c)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read palette %s", name)
	}
	if len(p.Colors) == 0 {
		return nil, errors.Errorf("no colors found in palette %s", name)
	}
	return p, nil
}

func parseColor(line string) (RGB, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return RGB{}, errors.Errorf("want R G B, got %q", line)
	}
	var c RGB
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 || v > 255 {
			return RGB{}, errors.Errorf("bad channel value %q", fields[i])
		}
		c[i] = uint8(v)
	}
	return c, nil
}

// Lookup returns the color at norm along the ramp, interpolating between
// neighbouring entries. norm is clamped to [0, 1].
func (p *Palette) Lookup(norm float64) RGB {
	last := len(p.Colors) - 1
	switch {
	case norm <= 0 || last == 0:
		return p.Colors[0]
	case norm >= 1:
		return p.Colors[last]
	}

	pos := norm * float64(last)
	i := int(pos)
	frac := pos - float64(i)
	a, b := p.Colors[i], p.Colors[i+1]

	var c RGB
	for ch := range c {
		c[ch] = uint8(float64(a[ch])*(1-frac) + float64(b[ch])*frac)
	}
	return c
}

// Gradient samples n evenly spaced colors between from and to. A single
// sample is the color at from.
func (p *Palette) Gradient(from, to float64, n int) []RGB {
	out := make([]RGB, n)
	for i := range out {
		t := from
		if n > 1 {
			t = from + (to-from)*float64(i)/float64(n-1)
		}
		out[i] = p.Lookup(t)
	}
	return out
}
