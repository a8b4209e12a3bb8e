// Package colors maps domain indexes onto display colors.
//
// A domain of n buckets is spread evenly over the Spectral scale and every
// sampled color is darkened so it reads well on light backgrounds. The
// mapping depends only on its arguments.
package colors

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Spectral is the eleven-class ColorBrewer Spectral scheme.
var Spectral = []string{
	"#9e0142", "#d53e4f", "#f46d43", "#fdae61", "#fee08b", "#ffffbf",
	"#e6f598", "#abdda4", "#66c2a5", "#3288bd", "#5e4fa2",
}

// darkenAmount is the Lab lightness subtracted from every sampled color.
const darkenAmount = 0.18

// Scale interpolates between evenly spaced color stops in RGB.
type Scale struct {
	stops []colorful.Color
}

var defaultScale = mustScale(Spectral)

// NewScale builds a scale from hex color stops.
func NewScale(hexes []string) (*Scale, error) {
	if len(hexes) == 0 {
		return nil, fmt.Errorf("color scale needs at least one stop")
	}
	stops := make([]colorful.Color, 0, len(hexes))
	for _, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("parsing color stop %q: %w", h, err)
		}
		stops = append(stops, c)
	}
	return &Scale{stops: stops}, nil
}

func mustScale(hexes []string) *Scale {
	s, err := NewScale(hexes)
	if err != nil {
		panic(err)
	}
	return s
}

// Assign returns the color of index within a domain of domainSize buckets on
// the Spectral scale, as #rrggbb.
func Assign(index, domainSize int) string {
	return defaultScale.Assign(index, domainSize)
}

// Assign returns the darkened color of index within a domain of domainSize
// buckets. Out-of-range arguments are clamped.
func (s *Scale) Assign(index, domainSize int) string {
	if domainSize < 1 {
		domainSize = 1
	}
	if index < 0 {
		index = 0
	}
	if index >= domainSize {
		index = domainSize - 1
	}

	t := 0.5
	if domainSize > 1 {
		t = float64(index) / float64(domainSize-1)
	}
	return darken(s.At(t)).Hex()
}

// At samples the scale at t in [0, 1].
func (s *Scale) At(t float64) colorful.Color {
	n := len(s.stops)
	if n == 1 || t <= 0 {
		return s.stops[0]
	}
	if t >= 1 {
		return s.stops[n-1]
	}

	pos := t * float64(n-1)
	i := int(math.Floor(pos))
	if i >= n-1 {
		return s.stops[n-1]
	}
	return s.stops[i].BlendRgb(s.stops[i+1], pos-float64(i))
}

func darken(c colorful.Color) colorful.Color {
	l, a, b := c.Lab()
	return colorful.Lab(l-darkenAmount, a, b).Clamped()
}

// WithAlpha appends an alpha channel to a #rrggbb color.
func WithAlpha(hex string, alpha float64) string {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return fmt.Sprintf("%s%02x", hex, int(math.Round(alpha*255)))
}
