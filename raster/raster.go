/*Package raster converts captured frames into float intensity planes.

Every decoder works on Planes: row-major float64 buffers in 8-bit intensity
units, so 0 is black and 255 is full scale regardless of whether the camera
delivered 8-bit, 16-bit, or color frames.
*/
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/gift"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nasa-jpl/structlight/util"
)

var (
	// ErrSizesDiffer is generated when planes that must share dimensions do not
	ErrSizesDiffer = errors.New("plane dimensions differ")

	// ErrNoPlanes is generated when an operation needs at least one plane
	ErrNoPlanes = errors.New("no planes")
)

// Plane is a row-major buffer of intensities in 8-bit units
type Plane struct {
	Width  int
	Height int
	Pix    []float64
}

// NewPlane returns a black plane of the given size
func NewPlane(width, height int) *Plane {
	return &Plane{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// At returns the intensity at x, y
func (p *Plane) At(x, y int) float64 {
	return p.Pix[y*p.Width+x]
}

// Set writes the intensity at x, y
func (p *Plane) Set(x, y int, v float64) {
	p.Pix[y*p.Width+x] = v
}

// SameSize is true if both planes have the same dimensions
func (p *Plane) SameSize(o *Plane) bool {
	return p.Width == o.Width && p.Height == o.Height
}

// FromImage converts any image to a plane.  Gray and Gray16 images are copied
// exactly; everything else goes through a luminance conversion.
func FromImage(img image.Image) *Plane {
	b := img.Bounds()
	p := NewPlane(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < p.Height; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+p.Width]
			for x, v := range row {
				p.Pix[y*p.Width+x] = float64(v)
			}
		}
	case *image.Gray16:
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				v := src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
				p.Pix[y*p.Width+x] = float64(v) / 257
			}
		}
	default:
		g := gift.New(gift.Grayscale())
		dst := image.NewGray16(g.Bounds(b))
		g.Draw(dst, img)
		db := dst.Bounds()
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				p.Pix[y*p.Width+x] = float64(dst.Gray16At(db.Min.X+x, db.Min.Y+y).Y) / 257
			}
		}
	}
	return p
}

// Gray16 renders the plane as a 16-bit image, clipping to [0, 255]
func (p *Plane) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			v := util.Clamp(p.At(x, y), 0, 255) * 257
			img.SetGray16(x, y, color.Gray16{Y: uint16(v + 0.5)})
		}
	}
	return img
}

// Gray renders the plane as an 8-bit image, clipping to [0, 255]
func (p *Plane) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	for i, v := range p.Pix {
		img.Pix[i] = uint8(util.Clamp(v, 0, 255) + 0.5)
	}
	return img
}

// Mean averages planes of identical size pixel by pixel
func Mean(planes []*Plane) (*Plane, error) {
	if len(planes) == 0 {
		return nil, ErrNoPlanes
	}
	out := NewPlane(planes[0].Width, planes[0].Height)
	for _, p := range planes {
		if !p.SameSize(out) {
			return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizesDiffer, p.Width, p.Height, out.Width, out.Height)
		}
		floats.Add(out.Pix, p.Pix)
	}
	floats.Scale(1/float64(len(planes)), out.Pix)
	return out, nil
}

// Smooth applies a Gaussian blur of the given standard deviation in pixels.
// sigma <= 0 returns the plane unchanged.
func Smooth(p *Plane, sigma float64) *Plane {
	if sigma <= 0 {
		return p
	}
	g := gift.New(gift.GaussianBlur(float32(sigma)))
	src := p.Gray16()
	dst := image.NewGray16(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return FromImage(dst)
}

// Stats holds summary statistics of a plane
type Stats struct {
	Min, Max, Mean, StdDev float64
}

// Statistics computes summary statistics of the plane
func (p *Plane) Statistics() Stats {
	if len(p.Pix) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(p.Pix, nil)
	return Stats{Min: floats.Min(p.Pix), Max: floats.Max(p.Pix), Mean: mean, StdDev: std}
}
