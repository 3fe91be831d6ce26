package align

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/needle-align/config"
	"github.com/soocke/needle-align/domain/actuator"
	"github.com/soocke/needle-align/domain/vision"
)

type snapshotRecorder struct {
	mu     sync.Mutex
	states []State
	last   Snapshot
}

// listener records state changes.
func (r *snapshotRecorder) listener(prev, next Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev.State != next.State {
		r.states = append(r.states, next.State)
	}
	r.last = next
}

func (r *snapshotRecorder) seq() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func newTestController(t *testing.T, r *rig) *Controller {
	t.Helper()
	c := NewController(r.m, r.bank, discardLogger)
	t.Cleanup(c.Close)
	return c
}

// tickUntil drives the controller until cond holds or timeout passes.
func tickUntil(t *testing.T, c *Controller, cond func(Snapshot) bool, timeout time.Duration) Snapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s := c.Snapshot(); cond(s) {
			return s
		}
		c.Tick(time.Now())
		time.Sleep(2 * time.Millisecond)
	}
	s := c.Snapshot()
	t.Fatalf("condition not reached (state %v, iterations %d)", s.State, s.Iterations)
	return s
}

func TestController_ConvergesWithListener(t *testing.T) {
	r := newRig(t, testConfig(2), func(d *actuator.SimDriver) vision.Locator { return fixtureLocator(d, 110, 92) })
	c := newTestController(t, r)
	rec := &snapshotRecorder{}
	c.AddListener(rec.listener)

	require.NoError(t, c.Start())
	tickUntil(t, c, func(s Snapshot) bool { return s.State == StateConverged }, 2*time.Second)

	assert.Equal(t, []State{StateSearching, StateAdjusting, StateConverged}, rec.seq())
	assert.True(t, allFalse(r.bank.EnabledStates()))

	require.NoError(t, c.Reset())
	waitForState(t, c, StateIdle, time.Second)
}

func TestController_StartWhileActive(t *testing.T) {
	r := newRig(t, testConfig(2), func(*actuator.SimDriver) vision.Locator { return neverFound() })
	c := newTestController(t, r)
	require.NoError(t, c.Start())
	assert.True(t, errors.Is(c.Start(), ErrSessionActive))
	assert.True(t, errors.Is(c.Reset(), ErrInvalidState))
}

func TestController_AbortDisablesImmediately(t *testing.T) {
	cfg := testConfig(2)
	cfg.MaxIterations = 10000
	r := newRig(t, cfg, func(*actuator.SimDriver) vision.Locator { return fixedEstimate(400, 400) })
	c := newTestController(t, r)
	require.NoError(t, c.Start())
	tickUntil(t, c, func(s Snapshot) bool { return s.State == StateAdjusting && s.Iterations > 0 }, time.Second)

	c.Abort()
	assert.True(t, allFalse(r.bank.EnabledStates()), "channels disabled before Abort returns")
	c.Tick(time.Now())
	waitForState(t, c, StateAborted, time.Second)
	snap := c.Snapshot()
	assert.Zero(t, snap.Iterations)

	sent := len(r.drv.Sent())
	c.Abort()
	for i := 0; i < 5; i++ {
		c.Tick(time.Now())
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateAborted, c.Current())
	assert.Len(t, r.drv.Sent(), sent)
}

func TestController_NeverOverlapsCommandsPerChannel(t *testing.T) {
	cfg := testConfig(2)
	cfg.MaxIterations = 10000
	require.NoError(t, cfg.Validate())
	inner := actuator.NewSimDriver(15*time.Millisecond, simAxes(cfg))
	drv := newAuditDriver(inner)
	bank := newTestBank(t, cfg, drv)
	m, err := NewMachine(cfg, fixedEstimate(400, 400), newStaticSource(640, 480), bank, nil, discardLogger)
	require.NoError(t, err)
	c := NewController(m, bank, discardLogger)
	defer c.Close()

	require.NoError(t, c.Start())
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		c.Tick(time.Now())
		time.Sleep(time.Millisecond)
	}
	c.Abort()
	waitForState(t, c, StateAborted, time.Second)

	assert.Zero(t, drv.Violations())
	assert.Greater(t, c.SkippedTicks(), uint64(0))
	assert.NotEmpty(t, inner.Sent())
}

func newAuditedController(t *testing.T, cfg *config.Config, latency time.Duration, loc func(*actuator.SimDriver) vision.Locator) (*Controller, *auditDriver, *actuator.Bank) {
	t.Helper()
	require.NoError(t, cfg.Validate())
	inner := actuator.NewSimDriver(latency, simAxes(cfg))
	drv := newAuditDriver(inner)
	bank := newTestBank(t, cfg, drv)
	m, err := NewMachine(cfg, loc(inner), newStaticSource(640, 480), bank, nil, discardLogger)
	require.NoError(t, err)
	c := NewController(m, bank, discardLogger)
	t.Cleanup(c.Close)
	return c, drv, bank
}

func waitDrained(t *testing.T, bank *actuator.Bank, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		for i := 0; i < bank.Len(); i++ {
			if ch, _ := bank.Channel(i); ch.Pending() {
				return false
			}
		}
		return true
	}, timeout, 2*time.Millisecond)
}

func TestController_AbortResetManualJogKeepsOneCommandPerChannel(t *testing.T) {
	cfg := testConfig(2)
	c, drv, bank := newAuditedController(t, cfg, 80*time.Millisecond, func(d *actuator.SimDriver) vision.Locator { return fixtureLocator(d, 110, 92) })

	require.NoError(t, c.Start())
	c.Tick(time.Now())
	require.Eventually(t, func() bool { return len(drv.Sent()) == 2 }, time.Second, time.Millisecond)
	c.Abort()
	waitForState(t, c, StateAborted, time.Second)
	require.NoError(t, c.Reset())

	_, err := c.ManualJog(0, actuator.Forward, 1)
	assert.True(t, errors.Is(err, actuator.ErrCommandOutstanding), "got %v", err)
	assert.Len(t, drv.Sent(), 2)

	waitDrained(t, bank, time.Second)
	ch, _ := bank.Channel(0)
	assert.Equal(t, -3.0, ch.Position(), "late ack counted")

	_, err = c.ManualJog(0, actuator.Forward, 1)
	require.NoError(t, err)
	assert.Zero(t, drv.Violations())
	x, _ := drv.Offset()
	assert.Equal(t, x, ch.Position())
}

func TestController_RestartAfterAckTimeoutKeepsOneCommandPerChannel(t *testing.T) {
	cfg := testConfig(2)
	cfg.AckTimeoutMs = 30
	cfg.MaxIterations = 10000
	c, drv, bank := newAuditedController(t, cfg, 60*time.Millisecond, func(d *actuator.SimDriver) vision.Locator { return fixtureLocator(d, 110, 92) })

	require.NoError(t, c.Start())
	tickUntil(t, c, func(s Snapshot) bool { return s.State == StateFaulted }, time.Second)
	require.NoError(t, c.Reset())
	require.NoError(t, c.Start())
	tickUntil(t, c, func(s Snapshot) bool { return s.State.Terminal() }, 2*time.Second)
	c.Abort()
	waitForState(t, c, StateAborted, time.Second)
	waitDrained(t, bank, time.Second)

	assert.Zero(t, drv.Violations())
	x, y := drv.Offset()
	p := bank.Positions()
	assert.Equal(t, x, p[0])
	assert.Equal(t, y, p[1])
}

func TestController_SetROIAndManualJog(t *testing.T) {
	r := newRig(t, testConfig(3), func(*actuator.SimDriver) vision.Locator { return neverFound() })
	c := newTestController(t, r)

	require.NoError(t, c.SetROI(image.Rect(10, 10, 90, 70)))
	assert.Equal(t, image.Rect(10, 10, 90, 70), c.Snapshot().ROI)
	assert.Error(t, c.SetROI(image.Rectangle{}))

	res, err := c.ManualJog(2, actuator.Forward, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, res.Applied)
	assert.True(t, c.Snapshot().ManualAllowed)
}

func TestController_ClosedRejectsCommands(t *testing.T) {
	r := newRig(t, testConfig(2), func(*actuator.SimDriver) vision.Locator { return neverFound() })
	c := NewController(r.m, r.bank, discardLogger)
	c.Close()
	c.Close()
	assert.True(t, errors.Is(c.Start(), ErrClosed))
	assert.True(t, errors.Is(c.Reset(), ErrClosed))
	_, err := c.ManualJog(0, actuator.Forward, 1)
	assert.True(t, errors.Is(err, ErrClosed))
	c.Abort()
	c.Tick(time.Now())
}

func TestController_ListenerPanicIsContained(t *testing.T) {
	r := newRig(t, testConfig(2), func(*actuator.SimDriver) vision.Locator { return neverFound() })
	c := newTestController(t, r)
	c.AddListener(func(prev, next Snapshot) { panic("boom") })
	require.NoError(t, c.Start())
	c.Abort()
	waitForState(t, c, StateAborted, time.Second)
}
