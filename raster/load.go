package raster

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	// decoders for the capture formats cameras commonly write
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/astrogo/fitsio"
)

// IsFITS is true if the path has a FITS extension
func IsFITS(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return true
	}
	return false
}

// Load reads the first frame of an image file as a plane.  FITS, PNG, JPEG,
// TIFF, and BMP are understood.
func Load(path string) (*Plane, error) {
	if IsFITS(path) {
		planes, err := LoadFITS(path)
		if err != nil {
			return nil, err
		}
		return planes[0], nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return FromImage(img), nil
}

// LoadFITS reads every frame of a FITS image or cube
func LoadFITS(path string) ([]*Plane, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFITS(f)
}

// ReadFITS reads the primary HDU of a FITS stream as a list of planes.
// A 2D image yields one plane, a 3D cube yields one plane per frame.
// Integer data have BZERO and BSCALE applied and are scaled from the full
// unsigned range of their width into 8-bit units; float data are taken as
// already being in 8-bit units.
func ReadFITS(r io.Reader) ([]*Plane, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("primary HDU is not an image")
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) < 2 || len(axes) > 3 {
		return nil, fmt.Errorf("expected 2 or 3 axes, got %d", len(axes))
	}
	width, height, frames := axes[0], axes[1], 1
	if len(axes) == 3 {
		frames = axes[2]
	}
	n := width * height * frames
	bzero := cardFloat(hdr, "BZERO", 0)
	bscale := cardFloat(hdr, "BSCALE", 1)

	vals := make([]float64, n)
	var fullScale float64
	switch hdr.Bitpix() {
	case 8:
		buf := make([]byte, n)
		err = img.Read(&buf)
		for i, v := range buf {
			vals[i] = float64(v)
		}
		fullScale = 255
	case 16:
		buf := make([]int16, n)
		err = img.Read(&buf)
		for i, v := range buf {
			vals[i] = float64(v)
		}
		fullScale = 65535
	case 32:
		buf := make([]int32, n)
		err = img.Read(&buf)
		for i, v := range buf {
			vals[i] = float64(v)
		}
		fullScale = 4294967295
	case -32:
		buf := make([]float32, n)
		err = img.Read(&buf)
		for i, v := range buf {
			vals[i] = float64(v)
		}
	case -64:
		err = img.Read(&vals)
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", hdr.Bitpix())
	}
	if err != nil {
		return nil, err
	}

	gain := 1.
	if fullScale > 0 {
		gain = 255 / fullScale
	}
	planes := make([]*Plane, frames)
	per := width * height
	for k := range planes {
		p := NewPlane(width, height)
		for i := range p.Pix {
			p.Pix[i] = (vals[k*per+i]*bscale + bzero) * gain
		}
		planes[k] = p
	}
	return planes, nil
}

func cardFloat(hdr *fitsio.Header, name string, def float64) float64 {
	card := hdr.Get(name)
	if card == nil {
		return def
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	}
	return def
}
