package align

import (
	"image"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soocke/needle-align/config"
	"github.com/soocke/needle-align/domain/actuator"
	"github.com/soocke/needle-align/domain/vision"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// staticSource always returns the same blank frame.
type staticSource struct{ frame vision.Frame }

func newStaticSource(w, h int) *staticSource {
	return &staticSource{frame: vision.Frame{Image: image.NewRGBA(image.Rect(0, 0, w, h))}}
}

func (s *staticSource) CurrentFrame() (vision.Frame, error) { return s.frame, nil }

// funcLocator delegates to a function and counts calls.
type funcLocator struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) vision.CenterEstimate
}

func (l *funcLocator) Locate(vision.Frame, image.Rectangle) (vision.CenterEstimate, error) {
	l.mu.Lock()
	l.calls++
	n := l.calls
	l.mu.Unlock()
	return l.fn(n), nil
}

func fixedEstimate(x, y float64) *funcLocator {
	return &funcLocator{fn: func(int) vision.CenterEstimate { return vision.CenterEstimate{X: x, Y: y, Valid: true} }}
}

func neverFound() *funcLocator {
	return &funcLocator{fn: func(int) vision.CenterEstimate { return vision.CenterEstimate{} }}
}

// fixtureLocator reports the start position moved by the simulated driver travel.
func fixtureLocator(drv *actuator.SimDriver, x, y float64) *funcLocator {
	return &funcLocator{fn: func(int) vision.CenterEstimate {
		dx, dy := drv.Offset()
		return vision.CenterEstimate{X: x + dx, Y: y + dy, Valid: true}
	}}
}

// auditDriver wraps a SimDriver and records any command sent to a channel that still
// has an unacknowledged command.
type auditDriver struct {
	*actuator.SimDriver
	mu          sync.Mutex
	outstanding map[int]bool
	violations  int
}

func newAuditDriver(inner *actuator.SimDriver) *auditDriver {
	return &auditDriver{SimDriver: inner, outstanding: make(map[int]bool)}
}

func (d *auditDriver) Send(cmd actuator.Command) error {
	d.mu.Lock()
	if d.outstanding[cmd.Channel] {
		d.violations++
	}
	d.outstanding[cmd.Channel] = true
	d.mu.Unlock()
	return d.SimDriver.Send(cmd)
}

func (d *auditDriver) SetAckHandler(h func(actuator.Ack)) {
	d.SimDriver.SetAckHandler(func(a actuator.Ack) {
		d.mu.Lock()
		d.outstanding[a.Channel] = false
		d.mu.Unlock()
		h(a)
	})
}

func (d *auditDriver) Violations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.violations
}

// testConfig returns a two-axis configuration with the target at (100,100).
func testConfig(channels int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.ChannelCount = channels
	cfg.Axes = config.DefaultAxes(channels)
	cfg.Tolerance = config.Tolerance{X: 0.5, Y: 0.5}
	cfg.MaxStepMagnitude = 3
	cfg.Target = &config.Point{X: 100, Y: 100}
	cfg.ROI = config.Rect{X: 0, Y: 0, W: 200, H: 200}
	cfg.AckTimeoutMs = 200
	return cfg
}

func newTestBank(t *testing.T, cfg *config.Config, drv actuator.Driver) *actuator.Bank {
	t.Helper()
	opts := make([]actuator.ChannelOptions, cfg.ChannelCount)
	axes := make([]actuator.Axis, cfg.ChannelCount)
	for i := range opts {
		opts[i] = actuator.ChannelOptions{
			TravelMin:    cfg.TravelMin,
			TravelMax:    cfg.TravelMax,
			MaxMagnitude: cfg.MaxStepMagnitude,
			AckTimeout:   cfg.AckTimeout(i),
		}
		axes[i] = actuator.Axis{X: cfg.Axes[i][0], Y: cfg.Axes[i][1]}
	}
	bank, err := actuator.NewBank(drv, opts, axes, discardLogger)
	require.NoError(t, err)
	return bank
}

func simAxes(cfg *config.Config) []actuator.Axis {
	axes := make([]actuator.Axis, len(cfg.Axes))
	for i, a := range cfg.Axes {
		axes[i] = actuator.Axis{X: a[0], Y: a[1]}
	}
	return axes
}

type rig struct {
	cfg  *config.Config
	drv  *actuator.SimDriver
	bank *actuator.Bank
	m    *Machine
}

func newRig(t *testing.T, cfg *config.Config, locator func(*actuator.SimDriver) vision.Locator) *rig {
	t.Helper()
	require.NoError(t, cfg.Validate())
	drv := actuator.NewSimDriver(time.Millisecond, simAxes(cfg))
	bank := newTestBank(t, cfg, drv)
	m, err := NewMachine(cfg, locator(drv), newStaticSource(640, 480), bank, nil, discardLogger)
	require.NoError(t, err)
	return &rig{cfg: cfg, drv: drv, bank: bank, m: m}
}

func allFalse(v []bool) bool {
	for _, b := range v {
		if b {
			return false
		}
	}
	return true
}

// waitForState waits up to timeout for the controller to publish expected.
func waitForState(t *testing.T, c *Controller, expected State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Current() == expected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for state %v (got %v)", expected, c.Current())
}
