// Package align runs the closed alignment loop: locate the model, compare it with
// the target and jog the needle channels until the fixture is aligned.
package align

import (
	"image"
	"time"

	"github.com/pkg/errors"

	"github.com/soocke/needle-align/domain/actuator"
	"github.com/soocke/needle-align/domain/vision"
)

var (
	ErrSessionActive = errors.New("align: session active")
	ErrInvalidState  = errors.New("align: invalid state for command")
	ErrClosed        = errors.New("align: controller closed")
)

// State enumerates the alignment attempt lifecycle.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateAdjusting
	StateConverged
	StateTimedOut
	StateAborted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateAdjusting:
		return "adjusting"
	case StateConverged:
		return "converged"
	case StateTimedOut:
		return "timed out"
	case StateAborted:
		return "aborted"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Active reports whether an attempt is running.
func (s State) Active() bool { return s == StateSearching || s == StateAdjusting }

// Terminal reports whether the attempt has ended and waits for Reset.
func (s State) Terminal() bool {
	return s == StateConverged || s == StateTimedOut || s == StateAborted || s == StateFaulted
}

// FrameSource supplies the current image on demand.
type FrameSource interface {
	CurrentFrame() (vision.Frame, error)
}

// Snapshot is an immutable view of the controller published after every cycle and
// command. Slices are owned by the snapshot.
type Snapshot struct {
	State          State
	Iterations     int
	Misses         int
	Confirming     int
	LastEstimate   vision.CenterEstimate
	Error          vision.Point // target minus estimate at the last valid evaluation
	Target         vision.Point
	ROI            image.Rectangle
	ChannelFaults  []bool
	ChannelEnabled []bool
	ChannelClamped []bool // last automatic jog was shortened by a limit; nil outside a session
	SessionID      string
	StartedAt      time.Time
	SkippedTicks   uint64
	Reason         string
	ManualAllowed  bool
	Frame          vision.Frame // last frame evaluated, read-only
}

// Listener is called on the controller goroutine after each published snapshot.
// It must not block.
type Listener func(prev, next Snapshot)

// Interface slices for consumers (presenters, scheduler).
type SnapshotSource interface{ Snapshot() Snapshot }
type Ticker interface{ Tick(now time.Time) }
type Commands interface {
	Start() error
	Abort()
	Reset() error
	SetROI(image.Rectangle) error
	ManualJog(channel int, dir actuator.Direction, magnitude float64) (actuator.JogResult, error)
}

// ControllerContract aggregate for DI.
type ControllerContract interface {
	SnapshotSource
	Ticker
	Commands
	AddListener(Listener)
	Close()
}
