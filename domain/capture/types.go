// Package capture supplies frames to the alignment loop: the live screen region of
// the camera viewer, a still image file, or a rendered simulation of the fixture.
package capture

import (
	"github.com/pkg/errors"

	"github.com/soocke/needle-align/domain/vision"
)

// ErrNoFrame is returned when a source has nothing to deliver yet.
var ErrNoFrame = errors.New("capture: no frame available")

// FrameSource provides the current frame on demand.
type FrameSource interface {
	CurrentFrame() (vision.Frame, error)
}

// ServiceContract exposes basic lifecycle control for capture services.
type ServiceContract interface {
	Start()
	Stop()
	Running() bool
}

// Service is the full capture service surface used by the app and presenters.
type Service interface {
	FrameSource
	ServiceContract
	Stats() CaptureStats
}
