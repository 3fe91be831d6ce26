// Package actuator models the needle channels that move the fixture and the
// transports that carry jog commands to the hardware.
package actuator

import (
	"github.com/pkg/errors"
)

var (
	ErrChannelDisabled    = errors.New("actuator: channel disabled")
	ErrCommandOutstanding = errors.New("actuator: command outstanding")
	ErrAckTimeout         = errors.New("actuator: acknowledgment timeout")
	ErrRejected           = errors.New("actuator: command rejected")
	ErrFaulted            = errors.New("actuator: channel faulted")
	ErrUnknownChannel     = errors.New("actuator: unknown channel")
)

// Direction is the sign of a jog.
type Direction int

const (
	Forward Direction = 1
	Reverse Direction = -1
)

func (d Direction) String() string {
	if d < 0 {
		return "reverse"
	}
	return "forward"
}

// DirectionOf returns Reverse for negative values and Forward otherwise.
func DirectionOf(v float64) Direction {
	if v < 0 {
		return Reverse
	}
	return Forward
}

// Command is the single typed message sent to a driver. Delta is the signed travel
// requested for one channel; Seq identifies the command for acknowledgment.
type Command struct {
	Channel int
	Seq     uint64
	Delta   float64
}

// Ack is the driver's reply to a Command. Applied is the travel actually performed.
type Ack struct {
	Channel  int
	Seq      uint64
	Applied  float64
	Rejected bool
	Reason   string
}

// Driver delivers commands to the hardware. Send must not block on the reply; acks
// arrive later through the handler installed with SetAckHandler.
type Driver interface {
	Send(cmd Command) error
}

// AckNotifier is implemented by drivers that report acknowledgments asynchronously.
type AckNotifier interface {
	SetAckHandler(func(Ack))
}

// Axis is the image-space displacement produced by one unit of travel on a channel.
// The zero axis marks a channel that does not take part in automatic correction.
type Axis struct {
	X, Y float64
}

// Zero reports whether the axis has no controlled direction.
func (a Axis) Zero() bool { return a.X == 0 && a.Y == 0 }

// JogResult describes a completed jog.
type JogResult struct {
	Applied  float64 // signed travel performed
	Position float64 // channel position after the jog
	Clamped  bool    // travel limits or the magnitude bound reduced the request
}

// Jog is one channel command inside a dispatch batch.
type Jog struct {
	Channel   int
	Dir       Direction
	Magnitude float64
}

// JogOutcome pairs a Jog with its result.
type JogOutcome struct {
	Jog
	Result JogResult
	Err    error
}
