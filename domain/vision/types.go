// Package vision locates the reference model inside a region of interest of a frame.
package vision

import (
	"image"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNilFrame is returned when a frame carries no pixel buffer.
	ErrNilFrame = errors.New("vision: nil frame")
	// ErrROIOutOfBounds is returned when the ROI is empty or not inside the frame.
	ErrROIOutOfBounds = errors.New("vision: roi outside frame bounds")
)

// Frame is a read-only view of one captured image. The locator never writes to Image.
type Frame struct {
	Image      *image.RGBA
	CapturedAt time.Time
	Sequence   uint64
}

// Bounds returns the frame rectangle or the zero rectangle for an empty frame.
func (f Frame) Bounds() image.Rectangle {
	if f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Point is a real-valued image coordinate.
type Point struct {
	X, Y float64
}

// CenterEstimate is the result of one locator invocation. When Valid is false the
// coordinates are zero and carry no meaning.
type CenterEstimate struct {
	X, Y   float64
	Valid  bool
	Score  float64         // locator confidence (pixel count or NCC score)
	Bounds image.Rectangle // detected pattern box, empty when invalid
}

// Point returns the estimate coordinates.
func (e CenterEstimate) Point() Point { return Point{X: e.X, Y: e.Y} }

// invalid returns a not-found estimate that still reports the best score seen.
func invalid(score float64) CenterEstimate { return CenterEstimate{Score: score} }

// Locator finds the model center inside roi. A missing pattern is reported through
// CenterEstimate.Valid, not as an error; errors are reserved for unusable input.
type Locator interface {
	Locate(frame Frame, roi image.Rectangle) (CenterEstimate, error)
}

// CheckROI verifies that roi is non-empty and fully contained in the frame.
func CheckROI(frame Frame, roi image.Rectangle) error {
	if frame.Image == nil {
		return ErrNilFrame
	}
	if roi.Empty() || !roi.In(frame.Bounds()) {
		return errors.Wrapf(ErrROIOutOfBounds, "roi %v frame %v", roi, frame.Bounds())
	}
	return nil
}

// luma returns the Rec.709 luma of an 8-bit RGBA pixel in 0..255.
// Fully transparent pixels contribute zero.
func luma(r, g, b, a uint8) float64 {
	if a == 0 {
		return 0
	}
	return 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)
}
