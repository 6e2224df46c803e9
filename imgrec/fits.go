package imgrec

import (
	"image"
	"image/png"
	"io"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"

	"github.com/nasa-jpl/structlight/dispmap"
	"github.com/nasa-jpl/structlight/raster"
	"github.com/nasa-jpl/structlight/util"
)

// WriteCube streams planes to w as a 16-bit FITS image, or a cube if there
// is more than one plane.  8-bit intensity units are scaled onto the full
// unsigned 16-bit range and stored signed with BZERO = 32768.
func WriteCube(w io.Writer, metadata []fitsio.Card, planes []*raster.Plane) error {
	if len(planes) == 0 {
		return raster.ErrNoPlanes
	}
	metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	width, height := planes[0].Width, planes[0].Height
	dims := []int{width, height}
	if len(planes) > 1 {
		dims = append(dims, len(planes))
	}
	ints := make([]int16, 0, width*height*len(planes))
	for _, p := range planes {
		if !p.SameSize(planes[0]) {
			return raster.ErrSizesDiffer
		}
		for _, v := range p.Pix {
			u := int(util.Clamp(v, 0, 255)*257 + 0.5)
			ints = append(ints, int16(u-32768))
		}
	}
	return writeImage(w, 16, dims, metadata, ints)
}

// WriteMap streams a correspondence map to w as a 32-bit float FITS image.
// Undecodable cells keep the sentinel value.
func WriteMap(w io.Writer, metadata []fitsio.Card, m *dispmap.Map) error {
	vals := m.Values()
	f32 := make([]float32, len(vals))
	for i, v := range vals {
		f32[i] = float32(v)
	}
	metadata = append(metadata, fitsio.Card{Name: "INVALID", Value: dispmap.Invalid, Comment: "undecodable cell value"})
	return writeImage(w, -32, []int{m.Width(), m.Height()}, metadata, f32)
}

// ReadMap reads a correspondence map written by WriteMap
func ReadMap(r io.Reader) (*dispmap.Map, error) {
	planes, err := raster.ReadFITS(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading map")
	}
	p := planes[0]
	return dispmap.FromValues(p.Width, p.Height, p.Pix), nil
}

func writeImage(w io.Writer, bitpix int, dims []int, metadata []fitsio.Card, data interface{}) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return errors.Wrap(err, "creating FITS stream")
	}
	defer fits.Close()
	im := fitsio.NewImage(bitpix, dims)
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return errors.Wrap(err, "writing FITS header")
	}
	err = im.Write(data)
	if err != nil {
		return errors.Wrap(err, "writing FITS data")
	}
	return fits.Write(im)
}

// WritePNG streams an image to w as a PNG
func WritePNG(w io.Writer, img image.Image) error {
	return errors.Wrap(png.Encode(w, img), "encoding PNG")
}
