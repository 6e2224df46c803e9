// Package dispmap holds dense correspondence maps from camera pixels to
// projector coordinates.
package dispmap

import (
	"image"
	"image/color"
	"math"

	"github.com/nasa-jpl/structlight/util"
)

// Invalid marks a cell that could not be decoded
const Invalid = -1.

// Map is a width x height buffer with one projector coordinate per camera pixel
type Map struct {
	width, height int
	data          []float64
}

// New returns a map with every cell invalid
func New(width, height int) *Map {
	m := &Map{width: width, height: height, data: make([]float64, width*height)}
	for i := range m.data {
		m.data[i] = Invalid
	}
	return m
}

// FromValues wraps a row-major buffer.  The buffer is copied.
func FromValues(width, height int, values []float64) *Map {
	m := &Map{width: width, height: height, data: make([]float64, width*height)}
	copy(m.data, values)
	return m
}

// Width is the number of camera columns
func (m *Map) Width() int { return m.width }

// Height is the number of camera rows
func (m *Map) Height() int { return m.height }

// At returns the coordinate at camera pixel x, y
func (m *Map) At(x, y int) float64 {
	return m.data[y*m.width+x]
}

// Set stores the coordinate for camera pixel x, y
func (m *Map) Set(x, y int, v float64) {
	m.data[y*m.width+x] = v
}

// Invalidate marks camera pixel x, y as undecodable
func (m *Map) Invalidate(x, y int) {
	m.data[y*m.width+x] = Invalid
}

// Valid is true if camera pixel x, y was decoded
func (m *Map) Valid(x, y int) bool {
	return IsValid(m.At(x, y))
}

// IsValid is true if v is a decoded coordinate rather than the sentinel
func IsValid(v float64) bool {
	return v >= 0 && !math.IsNaN(v)
}

// ValidCount returns the number of decoded cells
func (m *Map) ValidCount() int {
	n := 0
	for _, v := range m.data {
		if IsValid(v) {
			n++
		}
	}
	return n
}

// Values returns a copy of the row-major buffer
func (m *Map) Values() []float64 {
	out := make([]float64, len(m.data))
	copy(out, m.data)
	return out
}

// Row returns a copy of camera row y
func (m *Map) Row(y int) []float64 {
	out := make([]float64, m.width)
	copy(out, m.data[y*m.width:(y+1)*m.width])
	return out
}

// Equal is true if both maps have the same size and identical cells
func (m *Map) Equal(o *Map) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.width != o.width || m.height != o.height {
		return false
	}
	for i, v := range m.data {
		if v != o.data[i] {
			return false
		}
	}
	return true
}

// Gray16 renders the map as a preview image, scaling [0, max) onto the 16-bit
// range.  Invalid cells are black.
func (m *Map) Gray16(max float64) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, m.width, m.height))
	if max <= 0 {
		return img
	}
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			v := m.At(x, y)
			if !IsValid(v) {
				continue
			}
			s := util.Clamp(v/max, 0, 1) * 65535
			img.SetGray16(x, y, color.Gray16{Y: uint16(s + 0.5)})
		}
	}
	return img
}
