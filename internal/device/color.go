package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an RGB light color.
type Color struct {
	R, G, B uint8
}

var (
	ColorOff   = Color{}
	ColorRed   = Color{R: 255}
	ColorGreen = Color{G: 255}
	ColorBlue  = Color{B: 255}
	ColorWhite = Color{R: 255, G: 255, B: 255}
)

var namedColors = map[string]Color{
	"off":   ColorOff,
	"red":   ColorRed,
	"green": ColorGreen,
	"blue":  ColorBlue,
	"white": ColorWhite,
}

// ParseColor accepts a color name (red, green, blue, white, off) or #rrggbb.
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || len(hex) != 6 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Hex returns the color as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) String() string {
	for name, nc := range namedColors {
		if nc == c {
			return name
		}
	}
	return c.Hex()
}
