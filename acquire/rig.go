package acquire

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/nasa-jpl/structlight/camera"
	"github.com/nasa-jpl/structlight/pattern"
	"github.com/nasa-jpl/structlight/raster"
	"github.com/nasa-jpl/structlight/util"
)

// ErrNothingDisplayed is generated when the rig is asked for a frame before any pattern was shown
var ErrNothingDisplayed = errors.New("no pattern displayed")

// ErrPayloadUnsupported is generated when a pattern carries no raster the rig can show
var ErrPayloadUnsupported = errors.New("pattern payload cannot be displayed")

// Rig is a software projector and camera pair.  The camera sees the
// projected pattern through Mapping, scaled by Gain, offset by Ambient, and
// with Gaussian noise of standard deviation Noise, all in 8-bit units.
// It implements both Projector and camera.Camera.
type Rig struct {
	// Rows and Cols are the projector resolution
	Rows, Cols int

	// Width and Height are the camera resolution
	Width, Height int

	// Mapping returns the projector pixel seen by camera pixel x, y.  nil
	// stretches the projector over the camera.
	Mapping func(x, y int) (px, py float64)

	Gain    float64
	Ambient float64
	Noise   float64

	// Seed seeds the noise source
	Seed int64

	// DropEvery fails one frame request with camera.ErrNotReady after every
	// DropEvery that succeed.  0 disables.
	DropEvery int

	// Latency is slept on every frame
	Latency time.Duration

	mu       sync.Mutex
	shown    *raster.Plane
	rng      *rand.Rand
	requests int
	exposure time.Duration
}

// NewRig returns a rig whose camera sees the projector one to one, with
// unit gain and no noise
func NewRig(rows, cols int) *Rig {
	return &Rig{Rows: rows, Cols: cols, Width: cols, Height: rows, Gain: 1}
}

// Resolution returns the projector rows and columns
func (r *Rig) Resolution() (int, int, error) {
	return r.Rows, r.Cols, nil
}

// Display shows a pattern.  Raster and file payloads are supported.
func (r *Rig) Display(ctx context.Context, p pattern.Pattern) error {
	var (
		plane *raster.Plane
		err   error
	)
	switch p.Type {
	case pattern.ImageData:
		plane = raster.FromImage(p.Image)
	case pattern.ImageFile:
		plane, err = raster.Load(p.Filename)
		if err != nil {
			return err
		}
	default:
		return ErrPayloadUnsupported
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = plane
	return ctx.Err()
}

// GetRes returns the camera (H, W)
func (r *Rig) GetRes() ([2]int, error) {
	return [2]int{r.Height, r.Width}, nil
}

// SetExposureTime records the exposure time
func (r *Rig) SetExposureTime(d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exposure = d
	return nil
}

// GetExposureTime returns the last exposure time set
func (r *Rig) GetExposureTime() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exposure, nil
}

// CollectHeaderMetadata describes the simulation for FITS headers
func (r *Rig) CollectHeaderMetadata() []fitsio.Card {
	return []fitsio.Card{
		{Name: "CAMERA", Value: "simulated"},
		{Name: "GAIN", Value: r.Gain},
		{Name: "AMBIENT", Value: r.Ambient},
		{Name: "NOISE", Value: r.Noise},
	}
}

// GetFrame renders what the camera sees of the displayed pattern
func (r *Rig) GetFrame(ctx context.Context) (image.Image, error) {
	if r.Latency > 0 {
		select {
		case <-time.After(r.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.requests++
	if r.DropEvery > 0 && r.requests%(r.DropEvery+1) == 0 {
		return nil, camera.ErrNotReady
	}
	if r.shown == nil {
		return nil, ErrNothingDisplayed
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(r.Seed))
	}
	mapping := r.Mapping
	if mapping == nil {
		sx := float64(r.shown.Width) / float64(r.Width)
		sy := float64(r.shown.Height) / float64(r.Height)
		mapping = func(x, y int) (float64, float64) { return float64(x) * sx, float64(y) * sy }
	}
	img := image.NewGray16(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			v := r.Ambient
			px, py := mapping(x, y)
			ix, iy := int(px), int(py)
			if px >= 0 && py >= 0 && ix < r.shown.Width && iy < r.shown.Height {
				v += r.Gain * r.shown.At(ix, iy)
			}
			if r.Noise > 0 {
				v += r.rng.NormFloat64() * r.Noise
			}
			v = util.Clamp(v, 0, 255) * 257
			img.SetGray16(x, y, color.Gray16{Y: uint16(v + 0.5)})
		}
	}
	return img, nil
}
