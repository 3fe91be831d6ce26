package actuator

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ChannelOptions configures one actuator channel.
type ChannelOptions struct {
	Index        int
	TravelMin    float64
	TravelMax    float64
	MaxMagnitude float64 // 0 disables the bound
	AckTimeout   time.Duration
	// DrainTimeout bounds how long an abandoned command blocks new jogs while its
	// late acknowledgment is awaited. Defaults to four times AckTimeout.
	DrainTimeout time.Duration
}

type pendingJog struct {
	seq   uint64
	reply chan Ack
}

// orphanJog is a command still out at the driver whose Jog stopped waiting.
type orphanJog struct {
	seq   uint64
	since time.Time
}

// Channel is one needle actuator. A channel starts disabled. At most one command is
// outstanding at any time; a command without acknowledgment inside AckTimeout faults
// the channel until ResetFault. A command abandoned by timeout, disable or cancellation
// stays outstanding until its late acknowledgment arrives or DrainTimeout passes.
type Channel struct {
	opts   ChannelOptions
	driver Driver
	logger *slog.Logger

	mu       sync.Mutex
	enabled  bool
	faulted  bool
	position float64
	seq      uint64
	pending  *pendingJog
	orphan   *orphanJog
	gate     chan struct{} // closed while disabled
}

// NewChannel returns a disabled channel at position zero.
func NewChannel(opts ChannelOptions, driver Driver, logger *slog.Logger) *Channel {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 500 * time.Millisecond
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 4 * opts.AckTimeout
	}
	gate := make(chan struct{})
	close(gate)
	return &Channel{opts: opts, driver: driver, logger: logger, gate: gate}
}

func (c *Channel) Index() int { return c.opts.Index }

func (c *Channel) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Channel) Faulted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faulted
}

// Pending reports whether a command is out at the driver without acknowledgment,
// including one whose Jog already gave up waiting.
func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil || c.liveOrphan(time.Now())
}

// Orphaned reports whether an abandoned command is still awaiting its late ack.
func (c *Channel) Orphaned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveOrphan(time.Now())
}

func (c *Channel) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// SetEnabled gates the channel. Disabling wakes an in-flight Jog with ErrChannelDisabled;
// the command itself stays outstanding until acknowledged or drained.
func (c *Channel) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if enabled {
		c.gate = make(chan struct{})
	} else {
		close(c.gate)
		if c.pending != nil {
			c.orphanize(c.pending)
		}
	}
}

// ResetFault clears the fault flag.
func (c *Channel) ResetFault() {
	c.mu.Lock()
	c.faulted = false
	c.mu.Unlock()
}

// Jog moves the channel by magnitude in dir and waits for the driver acknowledgment.
// A request that would leave the travel range is shortened to the limit and reported
// as Clamped. A request that clamps to zero travel returns immediately without a command.
func (c *Channel) Jog(ctx context.Context, dir Direction, magnitude float64) (JogResult, error) {
	if magnitude < 0 {
		magnitude, dir = -magnitude, -dir
	}
	clamped := false
	if c.opts.MaxMagnitude > 0 && magnitude > c.opts.MaxMagnitude {
		magnitude, clamped = c.opts.MaxMagnitude, true
	}

	c.mu.Lock()
	switch {
	case !c.enabled:
		c.mu.Unlock()
		return JogResult{}, errors.Wrapf(ErrChannelDisabled, "channel %d", c.opts.Index)
	case c.faulted:
		c.mu.Unlock()
		return JogResult{}, errors.Wrapf(ErrFaulted, "channel %d", c.opts.Index)
	case c.pending != nil:
		c.mu.Unlock()
		return JogResult{}, errors.Wrapf(ErrCommandOutstanding, "channel %d seq %d", c.opts.Index, c.pending.seq)
	case c.liveOrphan(time.Now()):
		seq := c.orphan.seq
		c.mu.Unlock()
		return JogResult{}, errors.Wrapf(ErrCommandOutstanding, "channel %d seq %d unacknowledged", c.opts.Index, seq)
	}
	target := c.position + float64(dir)*magnitude
	if target < c.opts.TravelMin {
		target, clamped = c.opts.TravelMin, true
	} else if target > c.opts.TravelMax {
		target, clamped = c.opts.TravelMax, true
	}
	delta := target - c.position
	if delta == 0 {
		pos := c.position
		c.mu.Unlock()
		return JogResult{Position: pos, Clamped: clamped}, nil
	}
	c.seq++
	p := &pendingJog{seq: c.seq, reply: make(chan Ack, 1)}
	c.pending = p
	gate := c.gate
	c.mu.Unlock()

	cmd := Command{Channel: c.opts.Index, Seq: p.seq, Delta: delta}
	if err := c.driver.Send(cmd); err != nil {
		c.mu.Lock()
		c.clear(p)
		c.faulted = true
		c.mu.Unlock()
		return JogResult{}, errors.Wrapf(err, "channel %d send", c.opts.Index)
	}

	timer := time.NewTimer(c.opts.AckTimeout)
	defer timer.Stop()
	select {
	case ack := <-p.reply:
		c.mu.Lock()
		c.release(p)
		if ack.Rejected {
			c.faulted = true
			c.mu.Unlock()
			return JogResult{}, errors.Wrapf(ErrRejected, "channel %d seq %d: %s", c.opts.Index, ack.Seq, ack.Reason)
		}
		c.position += ack.Applied
		pos := c.position
		c.mu.Unlock()
		if math.Abs(ack.Applied-delta) > 1e-9 {
			clamped = true
		}
		return JogResult{Applied: ack.Applied, Position: pos, Clamped: clamped}, nil
	case <-timer.C:
		c.mu.Lock()
		c.abandon(p)
		c.faulted = true
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Warn("channel ack timeout", "channel", c.opts.Index, "seq", p.seq, "timeout", c.opts.AckTimeout)
		}
		return JogResult{}, errors.Wrapf(ErrAckTimeout, "channel %d seq %d", c.opts.Index, p.seq)
	case <-gate:
		c.mu.Lock()
		c.abandon(p)
		c.mu.Unlock()
		return JogResult{}, errors.Wrapf(ErrChannelDisabled, "channel %d", c.opts.Index)
	case <-ctx.Done():
		c.mu.Lock()
		c.abandon(p)
		c.mu.Unlock()
		return JogResult{}, ctx.Err()
	}
}

// deliver hands ack to the waiting Jog, or settles an abandoned command whose late
// ack just arrived. Acks for other sequences are dropped.
func (c *Channel) deliver(ack Ack) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.pending; p != nil && p.seq == ack.Seq {
		select {
		case p.reply <- ack:
			return true
		default:
			return false
		}
	}
	if c.orphan != nil && c.orphan.seq == ack.Seq {
		c.settle(ack)
		return true
	}
	return false
}

// abandon stops waiting for p. An ack already handed over is applied; otherwise the
// command becomes the channel's orphan. Caller holds mu.
func (c *Channel) abandon(p *pendingJog) {
	select {
	case ack := <-p.reply:
		c.release(p)
		if !ack.Rejected {
			c.position += ack.Applied
		}
		return
	default:
	}
	if c.pending == p {
		c.orphanize(p)
	}
}

// orphanize moves p from pending to orphan. Caller holds mu.
func (c *Channel) orphanize(p *pendingJog) {
	c.pending = nil
	c.orphan = &orphanJog{seq: p.seq, since: time.Now()}
}

// settle applies the late ack of the orphaned command. Caller holds mu.
func (c *Channel) settle(ack Ack) {
	c.orphan = nil
	if ack.Rejected {
		if c.logger != nil {
			c.logger.Warn("late nak for abandoned command", "channel", c.opts.Index, "seq", ack.Seq, "reason", ack.Reason)
		}
		return
	}
	c.position += ack.Applied
	if c.logger != nil {
		c.logger.Info("late ack applied", "channel", c.opts.Index, "seq", ack.Seq, "applied", ack.Applied, "position", c.position)
	}
}

// liveOrphan reports whether an orphan still blocks new commands, dropping it once
// DrainTimeout has passed. Caller holds mu.
func (c *Channel) liveOrphan(now time.Time) bool {
	if c.orphan == nil {
		return false
	}
	if now.Sub(c.orphan.since) < c.opts.DrainTimeout {
		return true
	}
	if c.logger != nil {
		c.logger.Warn("giving up on unacknowledged command", "channel", c.opts.Index, "seq", c.orphan.seq, "drain", c.opts.DrainTimeout)
	}
	c.orphan = nil
	return false
}

// clear drops p if it is still the pending command. Caller holds mu.
func (c *Channel) clear(p *pendingJog) {
	if c.pending == p {
		c.pending = nil
	}
}

// release forgets p whether it is pending or was orphaned after its ack was handed
// over. Caller holds mu.
func (c *Channel) release(p *pendingJog) {
	c.clear(p)
	if c.orphan != nil && c.orphan.seq == p.seq {
		c.orphan = nil
	}
}
