/*Package camera describes the interfaces a camera presents to the scanner

Camera contains the basics needed to capture one frame per projected pattern,
while ExposureSetter and MetadataMaker are optional extensions the scanner
and recorder look for.
*/
package camera

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/astrogo/fitsio"
)

// ErrNotReady is generated by cameras that are asked for a frame before they can deliver one.
// It is treated as transient and retried.
var ErrNotReady = errors.New("camera not ready")

// Camera describes a minimal camera with only the basics.
type Camera interface {
	// GetRes gets the (H, W) associated with the frames returned by GetFrame
	GetRes() ([2]int, error)

	// GetFrame triggers capture of a frame and returns it.  The call blocks
	// until the frame is read out or ctx is done.
	GetFrame(ctx context.Context) (image.Image, error)
}

// ExposureSetter describes a camera whose exposure can be matched to the
// pattern being shown
type ExposureSetter interface {
	// SetExposureTime sets the exposure time
	SetExposureTime(time.Duration) error

	// GetExposureTime gets the exposure time
	GetExposureTime() (time.Duration, error)
}

// MetadataMaker can produce an array of FITS cards
type MetadataMaker interface {
	// CollectHeaderMetadata produces an array of FITS cards
	CollectHeaderMetadata() []fitsio.Card
}
