package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
)

// Bank groups the channels of one fixture with their axis vectors and routes driver
// acknowledgments to the waiting channel.
type Bank struct {
	channels []*Channel
	axes     []Axis
	logger   *slog.Logger
}

// NewBank creates one channel per axis on top of driver. If driver implements
// AckNotifier the bank installs itself as the ack handler.
func NewBank(driver Driver, opts []ChannelOptions, axes []Axis, logger *slog.Logger) (*Bank, error) {
	if driver == nil {
		return nil, errors.New("actuator: nil driver")
	}
	if len(opts) == 0 || len(opts) != len(axes) {
		return nil, errors.Errorf("actuator: %d channel options for %d axes", len(opts), len(axes))
	}
	b := &Bank{
		channels: make([]*Channel, len(opts)),
		axes:     append([]Axis(nil), axes...),
		logger:   logger,
	}
	for i, o := range opts {
		o.Index = i
		b.channels[i] = NewChannel(o, driver, logger)
	}
	if n, ok := driver.(AckNotifier); ok {
		n.SetAckHandler(b.Acknowledge)
	}
	return b, nil
}

func (b *Bank) Len() int { return len(b.channels) }

// Channel returns channel i.
func (b *Bank) Channel(i int) (*Channel, error) {
	if i < 0 || i >= len(b.channels) {
		return nil, errors.Wrapf(ErrUnknownChannel, "index %d", i)
	}
	return b.channels[i], nil
}

// Axes returns a copy of the axis vectors indexed by channel.
func (b *Bank) Axes() []Axis { return append([]Axis(nil), b.axes...) }

// Acknowledge routes a driver reply to its channel. Safe from any goroutine.
func (b *Bank) Acknowledge(ack Ack) {
	if ack.Channel < 0 || ack.Channel >= len(b.channels) {
		if b.logger != nil {
			b.logger.Warn("ack for unknown channel", "channel", ack.Channel, "seq", ack.Seq)
		}
		return
	}
	if !b.channels[ack.Channel].deliver(ack) && b.logger != nil {
		b.logger.Debug("dropped stale ack", "channel", ack.Channel, "seq", ack.Seq)
	}
}

// Dispatch runs the jogs concurrently, one goroutine per entry, and returns once every
// jog has been acknowledged, rejected, timed out or cancelled. Outcomes keep the
// input order.
func (b *Bank) Dispatch(ctx context.Context, jogs []Jog) []JogOutcome {
	out := make([]JogOutcome, len(jogs))
	var wg sync.WaitGroup
	for i, j := range jogs {
		out[i].Jog = j
		ch, err := b.Channel(j.Channel)
		if err != nil {
			out[i].Err = err
			continue
		}
		wg.Add(1)
		go func(i int, ch *Channel, j Jog) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					out[i].Err = errors.Errorf("actuator: jog panic: %v", r)
					if b.logger != nil {
						b.logger.Error("jog panic", "channel", j.Channel, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
					}
				}
			}()
			out[i].Result, out[i].Err = ch.Jog(ctx, j.Dir, j.Magnitude)
		}(i, ch, j)
	}
	wg.Wait()
	return out
}

func (b *Bank) EnableAll() {
	for _, c := range b.channels {
		c.SetEnabled(true)
	}
}

func (b *Bank) DisableAll() {
	for _, c := range b.channels {
		c.SetEnabled(false)
	}
}

func (b *Bank) ResetFaults() {
	for _, c := range b.channels {
		c.ResetFault()
	}
}

// Faults returns the fault flag of every channel.
func (b *Bank) Faults() []bool {
	out := make([]bool, len(b.channels))
	for i, c := range b.channels {
		out[i] = c.Faulted()
	}
	return out
}

// EnabledStates returns the enable flag of every channel.
func (b *Bank) EnabledStates() []bool {
	out := make([]bool, len(b.channels))
	for i, c := range b.channels {
		out[i] = c.Enabled()
	}
	return out
}

// Positions returns the travel position of every channel.
func (b *Bank) Positions() []float64 {
	out := make([]float64, len(b.channels))
	for i, c := range b.channels {
		out[i] = c.Position()
	}
	return out
}
