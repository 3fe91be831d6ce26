package align

import (
	"context"
	"image"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/needle-align/domain/actuator"
)

// Controller owns a Machine on a single goroutine. Commands are processed in arrival
// order and always before a pending tick. At most one tick waits in the mailbox;
// further ticks are dropped and counted.
type Controller struct {
	m      *Machine
	bank   *actuator.Bank
	logger *slog.Logger

	events chan interface{}
	ticks  chan time.Time
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	snap      atomic.Pointer[Snapshot]
	skipped   atomic.Uint64
	listeners []Listener // loop goroutine only
}

// events
type (
	evtStart       struct{ reply chan error }
	evtAbort       struct{}
	evtReset       struct{ reply chan error }
	evtAddListener struct{ l Listener }
	evtSetROI      struct {
		roi   image.Rectangle
		reply chan error
	}
	evtManualJog struct {
		channel   int
		dir       actuator.Direction
		magnitude float64
		reply     chan jogReply
	}
)

type jogReply struct {
	res actuator.JogResult
	err error
}

// NewController constructs and starts the event loop.
func NewController(m *Machine, bank *actuator.Bank, logger *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		m:      m,
		bank:   bank,
		logger: logger,
		events: make(chan interface{}, 64),
		ticks:  make(chan time.Time, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	initial := m.Snapshot()
	c.snap.Store(&initial)
	go func() {
		defer close(c.done)
		defer recoverLog(logger, "alignment loop panic")
		c.loop()
	}()
	return c
}

func (c *Controller) loop() {
	for {
		// commands first so an abort lands before the next evaluation
		select {
		case ev := <-c.events:
			c.handle(ev)
			continue
		case <-c.ctx.Done():
			return
		default:
		}
		select {
		case ev := <-c.events:
			c.handle(ev)
		case <-c.ticks:
			if c.m.State().Active() {
				c.m.Cycle(c.ctx)
				c.publish()
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) handle(ev interface{}) {
	switch e := ev.(type) {
	case evtAddListener:
		c.listeners = append(c.listeners, e.l)
		return
	case evtStart:
		e.reply <- c.m.Start(time.Now())
	case evtAbort:
		c.m.Abort()
	case evtReset:
		e.reply <- c.m.Reset()
	case evtSetROI:
		e.reply <- c.m.SetROI(e.roi)
	case evtManualJog:
		res, err := c.m.ManualJog(c.ctx, e.channel, e.dir, e.magnitude)
		e.reply <- jogReply{res: res, err: err}
	}
	c.publish()
}

func (c *Controller) publish() {
	next := c.m.Snapshot()
	next.SkippedTicks = c.skipped.Load()
	prev := c.snap.Swap(&next)
	for _, l := range c.listeners {
		func() {
			defer recoverLog(c.logger, "alignment listener panic")
			l(*prev, next)
		}()
	}
}

// send queues ev unless the controller is closed.
func (c *Controller) send(ev interface{}) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func await[T any](c *Controller, reply chan T) (T, bool) {
	select {
	case v := <-reply:
		return v, true
	case <-c.done:
		var zero T
		return zero, false
	}
}

// Start begins a new attempt. Returns ErrSessionActive while one is running.
func (c *Controller) Start() error {
	reply := make(chan error, 1)
	if !c.send(evtStart{reply: reply}) {
		return ErrClosed
	}
	err, ok := await(c, reply)
	if !ok {
		return ErrClosed
	}
	return err
}

// Abort disables every channel immediately from the caller's goroutine and queues
// the transition to Aborted. Repeated calls are harmless.
func (c *Controller) Abort() {
	c.bank.DisableAll()
	c.send(evtAbort{})
}

// Reset returns a terminal attempt to Idle.
func (c *Controller) Reset() error {
	reply := make(chan error, 1)
	if !c.send(evtReset{reply: reply}) {
		return ErrClosed
	}
	err, ok := await(c, reply)
	if !ok {
		return ErrClosed
	}
	return err
}

// SetROI replaces the region of interest used from the next evaluation on.
func (c *Controller) SetROI(r image.Rectangle) error {
	reply := make(chan error, 1)
	if !c.send(evtSetROI{roi: r, reply: reply}) {
		return ErrClosed
	}
	err, ok := await(c, reply)
	if !ok {
		return ErrClosed
	}
	return err
}

// ManualJog moves one channel while no attempt is running and waits for the result.
func (c *Controller) ManualJog(channel int, dir actuator.Direction, magnitude float64) (actuator.JogResult, error) {
	reply := make(chan jogReply, 1)
	if !c.send(evtManualJog{channel: channel, dir: dir, magnitude: magnitude, reply: reply}) {
		return actuator.JogResult{}, ErrClosed
	}
	r, ok := await(c, reply)
	if !ok {
		return actuator.JogResult{}, ErrClosed
	}
	return r.res, r.err
}

// Tick offers one evaluation to the loop. It never blocks.
func (c *Controller) Tick(now time.Time) {
	select {
	case c.ticks <- now:
	default:
		c.skipped.Add(1)
	}
}

// AddListener registers l for snapshots published after it is processed.
func (c *Controller) AddListener(l Listener) { c.send(evtAddListener{l: l}) }

// Snapshot returns the last published snapshot.
func (c *Controller) Snapshot() Snapshot { return *c.snap.Load() }

// Current returns the last published state.
func (c *Controller) Current() State { return c.snap.Load().State }

// SkippedTicks returns the number of ticks dropped because a cycle was still pending.
func (c *Controller) SkippedTicks() uint64 { return c.skipped.Load() }

// Close stops the loop and leaves every channel disabled.
func (c *Controller) Close() {
	c.once.Do(func() {
		c.bank.DisableAll()
		c.cancel()
		<-c.done
		c.bank.DisableAll()
	})
}

var _ ControllerContract = (*Controller)(nil)

func recoverLog(logger *slog.Logger, msg string) {
	if r := recover(); r != nil {
		if logger != nil {
			logger.Error(msg, "error", r, "stack", string(debug.Stack()))
		}
	}
}
