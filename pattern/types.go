package pattern

import (
	"fmt"
	"strings"
)

// DataType tags which payload a Pattern carries
type DataType int

const (
	// InvalidData is the zero value; a pattern with it cannot be added to a sequence
	InvalidData DataType = iota
	// ImageData patterns carry a raster in Pattern.Image
	ImageData
	// ImageFile patterns carry a path in Pattern.Filename
	ImageFile
	// ParameterData patterns carry a parameter block in Pattern.Params
	ParameterData
)

var dataTypeNames = []string{"invalid", "image", "imagefile", "parameters"}

// Bitdepth is the number of bits per pixel of a pattern, in mono or RGB form
type Bitdepth int

// Bitdepths.  The RGB variants count bits over all three channels.
const (
	InvalidBitdepth Bitdepth = iota
	Mono1
	Mono2
	Mono3
	Mono4
	Mono5
	Mono6
	Mono7
	Mono8
	RGB3
	RGB6
	RGB9
	RGB12
	RGB15
	RGB18
	RGB21
	RGB24
)

var bitdepthNames = []string{"invalid",
	"mono1", "mono2", "mono3", "mono4", "mono5", "mono6", "mono7", "mono8",
	"rgb3", "rgb6", "rgb9", "rgb12", "rgb15", "rgb18", "rgb21", "rgb24"}

// Bits returns the number of bits per color channel, 0 if invalid
func (b Bitdepth) Bits() int {
	switch {
	case b >= Mono1 && b <= Mono8:
		return int(b - Mono1 + 1)
	case b >= RGB3 && b <= RGB24:
		return int(b - RGB3 + 1)
	default:
		return 0
	}
}

// IsRGB is true for the RGB variants
func (b Bitdepth) IsRGB() bool {
	return b >= RGB3 && b <= RGB24
}

// Valid is true for any defined, non-invalid bitdepth
func (b Bitdepth) Valid() bool {
	return b.Bits() > 0
}

// Levels returns the number of distinct intensity levels per channel
func (b Bitdepth) Levels() int {
	return 1 << uint(b.Bits())
}

// Color is the projector LED (or combination) a pattern is shown with
type Color int

// Colors
const (
	InvalidColor Color = iota
	Black
	Red
	Green
	Blue
	Cyan
	Magenta
	Yellow
	White
	RGB
)

var colorNames = []string{"invalid", "black", "red", "green", "blue", "cyan", "magenta", "yellow", "white", "rgb"}

// Channels returns which of the red, green, and blue channels the color lights
func (c Color) Channels() (r, g, b bool) {
	switch c {
	case Red:
		return true, false, false
	case Green:
		return false, true, false
	case Blue:
		return false, false, true
	case Cyan:
		return false, true, true
	case Magenta:
		return true, false, true
	case Yellow:
		return true, true, false
	case White, RGB:
		return true, true, true
	default:
		return false, false, false
	}
}

// Valid is true for any defined, non-invalid color
func (c Color) Valid() bool {
	return c > InvalidColor && c <= RGB
}

// Orientation is the direction the stripes of a pattern run.  Vertical
// stripes encode projector columns, horizontal stripes encode rows.
type Orientation int

// Orientations
const (
	InvalidOrientation Orientation = iota
	Vertical
	Horizontal
	Diagonal
)

var orientationNames = []string{"invalid", "vertical", "horizontal", "diagonal"}

// Valid is true for any defined, non-invalid orientation
func (o Orientation) Valid() bool {
	return o > InvalidOrientation && o <= Diagonal
}

func name(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("unknown(%d)", i)
	}
	return names[i]
}

func parse(names []string, kind, s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

func (d DataType) String() string    { return name(dataTypeNames, int(d)) }
func (b Bitdepth) String() string    { return name(bitdepthNames, int(b)) }
func (c Color) String() string       { return name(colorNames, int(c)) }
func (o Orientation) String() string { return name(orientationNames, int(o)) }

// MarshalText implements encoding.TextMarshaler
func (d DataType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// MarshalText implements encoding.TextMarshaler
func (b Bitdepth) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// MarshalText implements encoding.TextMarshaler
func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// MarshalText implements encoding.TextMarshaler
func (o Orientation) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (d *DataType) UnmarshalText(text []byte) error {
	i, err := parse(dataTypeNames, "data type", string(text))
	*d = DataType(i)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *Bitdepth) UnmarshalText(text []byte) error {
	i, err := parse(bitdepthNames, "bitdepth", string(text))
	*b = Bitdepth(i)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Color) UnmarshalText(text []byte) error {
	i, err := parse(colorNames, "color", string(text))
	*c = Color(i)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Orientation) UnmarshalText(text []byte) error {
	i, err := parse(orientationNames, "orientation", string(text))
	*o = Orientation(i)
	return err
}
