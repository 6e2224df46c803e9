package raster

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
)

func TestFromImageGrayIsExact(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 40)
	}
	p := FromImage(img)
	if p.Width != 3 || p.Height != 2 {
		t.Fatalf("expected 3x2 got %dx%d", p.Width, p.Height)
	}
	for i, v := range p.Pix {
		if v != float64(i*40) {
			t.Errorf("pixel %d: expected %d got %g", i, i*40, v)
		}
	}
}

func TestFromImageSubImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(2, 2, color.Gray{Y: 200})
	sub := img.SubImage(image.Rect(2, 2, 4, 4))
	p := FromImage(sub)
	if p.At(0, 0) != 200 {
		t.Errorf("expected sub image origin to map to 0,0, got %g", p.At(0, 0))
	}
}

func TestFromImageGray16Scales(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 1, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 257 * 100})
	if v := FromImage(img).At(0, 0); v != 100 {
		t.Errorf("expected 100 got %g", v)
	}
}

func TestFromImageColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.White)
	img.Set(1, 0, color.Black)
	p := FromImage(img)
	if math.Abs(p.At(0, 0)-255) > 1 || p.At(1, 0) > 1 {
		t.Errorf("expected white and black, got %g and %g", p.At(0, 0), p.At(1, 0))
	}
}

func TestMean(t *testing.T) {
	a, b := NewPlane(2, 1), NewPlane(2, 1)
	a.Pix = []float64{10, 20}
	b.Pix = []float64{30, 40}
	m, err := Mean([]*Plane{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if m.Pix[0] != 20 || m.Pix[1] != 30 {
		t.Errorf("expected [20 30] got %v", m.Pix)
	}
	if _, err := Mean([]*Plane{a, NewPlane(1, 1)}); !errors.Is(err, ErrSizesDiffer) {
		t.Errorf("expected ErrSizesDiffer got %v", err)
	}
	if _, err := Mean(nil); !errors.Is(err, ErrNoPlanes) {
		t.Errorf("expected ErrNoPlanes got %v", err)
	}
}

func TestSmoothFlatStaysFlat(t *testing.T) {
	p := NewPlane(8, 8)
	for i := range p.Pix {
		p.Pix[i] = 128
	}
	if Smooth(p, 0) != p {
		t.Error("expected sigma 0 to return the input")
	}
	s := Smooth(p, 1.5)
	for i, v := range s.Pix {
		if math.Abs(v-128) > 0.5 {
			t.Fatalf("pixel %d: expected 128 got %g", i, v)
		}
	}
}

func TestStatistics(t *testing.T) {
	p := NewPlane(4, 1)
	p.Pix = []float64{0, 10, 20, 30}
	s := p.Statistics()
	if s.Min != 0 || s.Max != 30 || s.Mean != 15 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestLoadPNG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix = []uint8{0, 64, 128, 255}
	fn := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(fn)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()
	p, err := Load(fn)
	if err != nil {
		t.Fatal(err)
	}
	if p.At(1, 1) != 255 || p.At(1, 0) != 64 {
		t.Errorf("unexpected pixels %v", p.Pix)
	}
}

func TestReadFITSCube(t *testing.T) {
	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	if err != nil {
		t.Fatal(err)
	}
	im := fitsio.NewImage(16, []int{2, 1, 2})
	err = im.Header().Append(fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	if err != nil {
		t.Fatal(err)
	}
	// physical values 0, 257*100 | 257*200, 65535
	data := []int16{-32768, 257*100 - 32768, 257*200 - 32768, 32767}
	if err := im.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := f.Write(im); err != nil {
		t.Fatal(err)
	}
	im.Close()
	f.Close()

	planes, err := ReadFITS(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(planes) != 2 {
		t.Fatalf("expected 2 frames got %d", len(planes))
	}
	expected := [][]float64{{0, 100}, {200, 255}}
	for k, p := range planes {
		for i, v := range p.Pix {
			if math.Abs(v-expected[k][i]) > 1e-9 {
				t.Errorf("frame %d pixel %d: expected %g got %g", k, i, expected[k][i], v)
			}
		}
	}
}

func TestIsFITS(t *testing.T) {
	if !IsFITS("a/b/c.FITS") || IsFITS("c.png") {
		t.Error("unexpected IsFITS result")
	}
}
