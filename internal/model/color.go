package model

import (
	"fmt"
	"math"
)

// Color holds normalized RGBA channels in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Palette mirrors the fixed set of colors offered to users.
var (
	Gray   = Color{R: 0.56, G: 0.56, B: 0.58, A: 1}
	Red    = Color{R: 1, G: 0.23, B: 0.19, A: 1}
	Orange = Color{R: 1, G: 0.58, B: 0, A: 1}
	Yellow = Color{R: 1, G: 0.8, B: 0, A: 1}
	Green  = Color{R: 0.2, G: 0.78, B: 0.35, A: 1}
	Mint   = Color{R: 0, G: 0.78, B: 0.75, A: 1}
	Cyan   = Color{R: 0.2, G: 0.68, B: 0.9, A: 1}
	Blue   = Color{R: 0, G: 0.48, B: 1, A: 1}
	Indigo = Color{R: 0.35, G: 0.34, B: 0.84, A: 1}
	Purple = Color{R: 0.69, G: 0.32, B: 0.87, A: 1}

	Palette = []Color{Gray, Red, Orange, Yellow, Green, Mint, Cyan, Indigo, Purple, Blue}
)

// colorEpsilon absorbs float32 round trips through storage backends.
const colorEpsilon = 1e-6

// Equal compares channels within a small tolerance.
func (c Color) Equal(o Color) bool {
	return math.Abs(c.R-o.R) < colorEpsilon &&
		math.Abs(c.G-o.G) < colorEpsilon &&
		math.Abs(c.B-o.B) < colorEpsilon &&
		math.Abs(c.A-o.A) < colorEpsilon
}

func (c Color) Validate() error {
	for _, v := range []float64{c.R, c.G, c.B, c.A} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: color channel %v outside [0,1]", ErrInvalidEvent, v)
		}
	}
	return nil
}

// Hex renders the color as #RRGGBB, used by the iCalendar COLOR property.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", channel(c.R), channel(c.G), channel(c.B))
}

// ParseHex reads #RRGGBB into an opaque color.
func ParseHex(s string) (Color, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return Color{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	return Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255, A: 1}, nil
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
