package actuator

import (
	"sync"
	"time"
)

// SimDriver is an in-process driver that acknowledges every command after a fixed
// latency and keeps the resulting fixture displacement. It backs the simulated frame
// source and the tests.
type SimDriver struct {
	latency time.Duration
	axes    []Axis

	mu       sync.Mutex
	handler  func(Ack)
	offsetX  float64
	offsetY  float64
	silent   map[int]bool
	rejected map[int]string
	sent     []Command
}

// NewSimDriver returns a driver for channels moving along axes.
func NewSimDriver(latency time.Duration, axes []Axis) *SimDriver {
	return &SimDriver{
		latency:  latency,
		axes:     append([]Axis(nil), axes...),
		silent:   make(map[int]bool),
		rejected: make(map[int]string),
	}
}

func (d *SimDriver) SetAckHandler(h func(Ack)) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

// Silence makes channel ch swallow commands without replying.
func (d *SimDriver) Silence(ch int, silent bool) {
	d.mu.Lock()
	d.silent[ch] = silent
	d.mu.Unlock()
}

// Reject makes channel ch answer every command with a NAK carrying reason.
// An empty reason restores normal behaviour.
func (d *SimDriver) Reject(ch int, reason string) {
	d.mu.Lock()
	if reason == "" {
		delete(d.rejected, ch)
	} else {
		d.rejected[ch] = reason
	}
	d.mu.Unlock()
}

// Send implements Driver. The ack is delivered from a separate goroutine.
func (d *SimDriver) Send(cmd Command) error {
	d.mu.Lock()
	d.sent = append(d.sent, cmd)
	h := d.handler
	if d.silent[cmd.Channel] || h == nil {
		d.mu.Unlock()
		return nil
	}
	ack := Ack{Channel: cmd.Channel, Seq: cmd.Seq, Applied: cmd.Delta}
	if reason, ok := d.rejected[cmd.Channel]; ok {
		ack = Ack{Channel: cmd.Channel, Seq: cmd.Seq, Rejected: true, Reason: reason}
	}
	d.mu.Unlock()

	go func() {
		if d.latency > 0 {
			time.Sleep(d.latency)
		}
		if !ack.Rejected {
			d.apply(ack)
		}
		h(ack)
	}()
	return nil
}

func (d *SimDriver) apply(ack Ack) {
	if ack.Channel < 0 || ack.Channel >= len(d.axes) {
		return
	}
	a := d.axes[ack.Channel]
	d.mu.Lock()
	d.offsetX += a.X * ack.Applied
	d.offsetY += a.Y * ack.Applied
	d.mu.Unlock()
}

// Offset returns the accumulated fixture displacement in image pixels.
func (d *SimDriver) Offset() (x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offsetX, d.offsetY
}

// Sent returns a copy of every command received so far.
func (d *SimDriver) Sent() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.sent...)
}

var (
	_ Driver      = (*SimDriver)(nil)
	_ AckNotifier = (*SimDriver)(nil)
)
