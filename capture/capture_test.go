package capture

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nasa-jpl/structlight/raster"
)

func gray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestAddRejectsInvalid(t *testing.T) {
	s := NewSequence()
	cases := []struct {
		name string
		c    Capture
		err  error
	}{
		{"untagged", Capture{Image: gray(1, 1, 0)}, ErrDataTypeInvalid},
		{"empty image", Capture{Type: ImageData}, ErrPayloadEmpty},
		{"zero size image", Capture{Type: ImageData, Image: image.NewGray(image.Rect(0, 0, 0, 0))}, ErrPayloadEmpty},
		{"empty file", Capture{Type: ImageFile}, ErrPayloadEmpty},
		{"both payloads", Capture{Type: ImageFile, Filename: "a.png", Image: gray(1, 1, 0)}, ErrPayloadMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.Add(tc.c); !errors.Is(err, tc.err) {
				t.Errorf("expected %v got %v", tc.err, err)
			}
		})
	}
	if s.Size() != 0 {
		t.Errorf("expected empty sequence after rejected adds, got %d", s.Size())
	}
}

func TestSequenceIndexing(t *testing.T) {
	s, err := FromImages(0, gray(2, 2, 1), gray(2, 2, 2), gray(2, 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(1); err != nil {
		t.Fatal(err)
	}
	c, err := s.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if c.PatternID != 2 {
		t.Errorf("expected pattern 2 to shift down, got %d", c.PatternID)
	}
	if _, err := s.Get(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange got %v", err)
	}
	if err := s.Set(-1, c); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange got %v", err)
	}
	s.Clear()
	if err := s.Validate(); !errors.Is(err, ErrSequenceEmpty) {
		t.Errorf("expected ErrSequenceEmpty got %v", err)
	}
}

func TestMixedTypes(t *testing.T) {
	s := NewSequence()
	_ = s.Add(Capture{Type: ImageData, Image: gray(1, 1, 0)})
	_ = s.Add(Capture{Type: ImageFile, Filename: "x.png"})
	if s.EqualDataTypes() {
		t.Error("expected mixed data types")
	}
	if err := s.Validate(); !errors.Is(err, ErrDataTypesDiffer) {
		t.Errorf("expected ErrDataTypesDiffer got %v", err)
	}
	if !NewSequence().EqualDataTypes() {
		t.Error("expected empty sequence to be vacuously homogeneous")
	}
}

func TestPlanesSizeMismatch(t *testing.T) {
	s, _ := FromImages(0, gray(2, 2, 0), gray(3, 2, 0))
	if _, err := s.Planes(); !errors.Is(err, raster.ErrSizesDiffer) {
		t.Errorf("expected ErrSizesDiffer got %v", err)
	}
}

func TestPlanesFromFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewSequence()
	for i, v := range []uint8{10, 200} {
		fn := filepath.Join(dir, string(rune('a'+i))+".png")
		f, err := os.Create(fn)
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, gray(3, 2, v)); err != nil {
			t.Fatal(err)
		}
		f.Close()
		if err := s.Add(Capture{Type: ImageFile, Filename: fn, PatternID: i}); err != nil {
			t.Fatal(err)
		}
	}
	planes, err := s.Planes()
	if err != nil {
		t.Fatal(err)
	}
	if planes[0].At(2, 1) != 10 || planes[1].At(0, 0) != 200 {
		t.Errorf("unexpected plane contents %v %v", planes[0].Pix, planes[1].Pix)
	}
}

func TestDataTypeText(t *testing.T) {
	var d DataType
	if err := d.UnmarshalText([]byte("FILE")); err != nil || d != ImageFile {
		t.Errorf("expected ImageFile got %v (%v)", d, err)
	}
	if err := d.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown name")
	}
}
