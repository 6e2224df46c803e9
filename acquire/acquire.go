/*Package acquire runs the projector and camera through a pattern sequence.

A Scanner shows each pattern of a sequence in order, waits out the pattern
period, and records one capture per pattern, so capture i always belongs to
pattern i.  When the sequence settings ask for Oversampling > 1 the scanner
grabs that many frames per pattern and stores their average.
*/
package acquire

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/structlight/camera"
	"github.com/nasa-jpl/structlight/capture"
	"github.com/nasa-jpl/structlight/coding"
	"github.com/nasa-jpl/structlight/dispmap"
	"github.com/nasa-jpl/structlight/pattern"
	"github.com/nasa-jpl/structlight/raster"
	"github.com/nasa-jpl/structlight/retcode"
)

var (
	// ErrFrameSizeChanged is generated when the camera returns frames of different sizes within one scan
	ErrFrameSizeChanged = errors.New("camera frame size changed during scan")

	// ErrNoDevices is generated when a Scanner is missing its projector or camera
	ErrNoDevices = errors.New("scanner needs a projector and a camera")
)

// Projector describes a pattern projector
type Projector interface {
	// Resolution returns the number of rows and columns of the projector
	Resolution() (rows, cols int, err error)

	// Display shows p until the next call
	Display(ctx context.Context, p pattern.Pattern) error
}

// Scanner captures one frame, or the average of several, per pattern
type Scanner struct {
	Projector Projector
	Camera    camera.Camera

	// CameraID is written into every capture
	CameraID int

	// RetryTimeout bounds the time spent retrying a failed frame grab.
	// Zero means 3 seconds.
	RetryTimeout time.Duration

	// Logger receives progress messages.  nil disables logging.
	Logger *zap.SugaredLogger
}

func (s *Scanner) log() *zap.SugaredLogger {
	if s.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return s.Logger
}

// Acquire projects every pattern of pats in order and returns the captures.
// The capture settings hold a copy of the pattern settings plus a ScanID.
func (s *Scanner) Acquire(ctx context.Context, pats *pattern.Sequence) (*capture.Sequence, error) {
	if s.Projector == nil || s.Camera == nil {
		return nil, ErrNoDevices
	}
	if err := pats.Validate(); err != nil {
		return nil, err
	}
	oversampling := pats.Settings().Int("Oversampling", 1)
	if oversampling < 1 {
		oversampling = 1
	}
	scanID := uuid.New().String()
	log := s.log().With("scan", scanID)

	caps := capture.NewSequence()
	if err := caps.Settings().Merge(pats.Settings()); err != nil {
		return nil, err
	}
	caps.Settings().Put("ScanID", scanID)

	log.Infow("scan started", "patterns", pats.Size(), "oversampling", oversampling)
	start := time.Now()
	lim := rate.NewLimiter(rate.Inf, 1)
	var (
		bounds   image.Rectangle
		exposure time.Duration
	)
	for i := 0; i < pats.Size(); i++ {
		p, err := pats.Get(i)
		if err != nil {
			return nil, err
		}
		if p.Period > 0 {
			lim.SetLimit(rate.Every(p.Period))
		} else {
			lim.SetLimit(rate.Inf)
		}
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		if es, ok := s.Camera.(camera.ExposureSetter); ok && p.Exposure > 0 && p.Exposure != exposure {
			if err := es.SetExposureTime(p.Exposure); err != nil {
				return nil, fmt.Errorf("pattern %d: setting exposure: %w", i, err)
			}
			exposure = p.Exposure
		}
		if err := s.Projector.Display(ctx, p); err != nil {
			return nil, fmt.Errorf("pattern %d: display: %w", i, err)
		}
		img, err := s.frame(ctx, oversampling)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		if i == 0 {
			bounds = img.Bounds()
		} else if img.Bounds().Size() != bounds.Size() {
			return nil, fmt.Errorf("%w: pattern %d", ErrFrameSizeChanged, i)
		}
		err = caps.Add(capture.Capture{CameraID: s.CameraID, PatternID: p.ID, Type: capture.ImageData, Image: img})
		if err != nil {
			return nil, err
		}
		log.Debugw("captured", "pattern", i, "id", p.ID)
	}
	log.Infow("scan finished", "captures", caps.Size(), "elapsed", time.Since(start))
	return caps, nil
}

// frame grabs n frames and returns them, averaged if n > 1
func (s *Scanner) frame(ctx context.Context, n int) (image.Image, error) {
	if n == 1 {
		return s.grab(ctx)
	}
	planes := make([]*raster.Plane, n)
	for i := range planes {
		img, err := s.grab(ctx)
		if err != nil {
			return nil, err
		}
		planes[i] = raster.FromImage(img)
	}
	avg, err := raster.Mean(planes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameSizeChanged, err)
	}
	return avg.Gray16(), nil
}

// grab gets one frame, retrying with exponential backoff while the camera
// reports camera.ErrNotReady.  Any other error ends the retry.
func (s *Scanner) grab(ctx context.Context) (image.Image, error) {
	timeout := s.RetryTimeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	var img image.Image
	op := func() error {
		var err error
		img, err = s.Camera.GetFrame(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if !errors.Is(err, camera.ErrNotReady) {
			return backoff.Permanent(err)
		}
		s.log().Debugw("frame grab failed, retrying", "err", err)
		return err
	}
	b := backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     5 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         500 * time.Millisecond,
		MaxElapsedTime:      timeout,
		Clock:               backoff.SystemClock}, ctx)
	if err := backoff.Retry(op, b); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("grabbing frame: %w", err)
	}
	return img, nil
}

// Scan generates the codec's patterns, acquires them, and decodes the
// captures.  The map is nil whenever the ReturnCode has errors.
func (s *Scanner) Scan(ctx context.Context, codec coding.Codec) (*dispmap.Map, *capture.Sequence, retcode.ReturnCode) {
	pats := pattern.NewSequence()
	rc := codec.GeneratePatternSequence(pats)
	if rc.HasErrors() {
		return nil, nil, rc
	}
	caps, err := s.Acquire(ctx, pats)
	if err != nil {
		rc.AddError(err)
		return nil, nil, rc
	}
	dmap, drc := codec.DecodeCaptureSequence(caps)
	rc.Append(drc)
	for _, w := range rc.Warnings() {
		s.log().Warnw(w, "scan", caps.Settings().String("ScanID", ""))
	}
	if rc.HasErrors() {
		return nil, caps, rc
	}
	s.log().Infow("decoded", "valid", dmap.ValidCount(), "pixels", dmap.Width()*dmap.Height())
	return dmap, caps, rc
}
