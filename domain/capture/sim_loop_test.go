package capture_test

import (
	"context"
	"image"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/needle-align/assets"
	"github.com/soocke/needle-align/config"
	"github.com/soocke/needle-align/domain/actuator"
	"github.com/soocke/needle-align/domain/align"
	"github.com/soocke/needle-align/domain/capture"
	"github.com/soocke/needle-align/domain/schedule"
	"github.com/soocke/needle-align/domain/vision"
)

// The simulated fixture closes the loop: jogs move the rendered model, the locator
// sees the move and the controller converges on the ROI midpoint.
func TestSimulatedFixture_Converges(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig()
	cfg.ROI = config.Rect{X: 0, Y: 0, W: 200, H: 160}
	cfg.TickIntervalMs = 5
	cfg.AckTimeoutMs = 200
	require.NoError(t, cfg.Validate())

	axes := make([]actuator.Axis, cfg.ChannelCount)
	opts := make([]actuator.ChannelOptions, cfg.ChannelCount)
	for i, a := range cfg.Axes {
		axes[i] = actuator.Axis{X: a[0], Y: a[1]}
		opts[i] = actuator.ChannelOptions{Index: i, TravelMin: cfg.TravelMin, TravelMax: cfg.TravelMax, MaxMagnitude: cfg.MaxStepMagnitude, AckTimeout: cfg.AckTimeout(i)}
	}
	drv := actuator.NewSimDriver(time.Millisecond, axes)
	bank, err := actuator.NewBank(drv, opts, axes, logger)
	require.NoError(t, err)

	model, err := assets.NeedleModelImage()
	require.NoError(t, err)
	// aligned position is the ROI midpoint; the fixture starts 7px left and 5px low
	src := capture.NewSimSource(200, 160, model, vision.Point{X: 93, Y: 85}, drv)
	locator := vision.NewCentroidLocator(vision.CentroidOptions{Threshold: 96, Dark: true, MinPixels: 12})

	m, err := align.NewMachine(cfg, locator, src, bank, nil, logger)
	require.NoError(t, err)
	ctrl := align.NewController(m, bank, logger)
	defer ctrl.Close()
	sched, err := schedule.New(ctrl, cfg.TickInterval(), logger)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Run(ctx) }()

	require.NoError(t, ctrl.Start())
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !ctrl.Current().Terminal() {
		time.Sleep(5 * time.Millisecond)
	}
	snap := ctrl.Snapshot()
	require.Equal(t, align.StateConverged, snap.State, "reason: %s", snap.Reason)
	assert.InDelta(t, 100, snap.LastEstimate.X, 0.5)
	assert.InDelta(t, 80, snap.LastEstimate.Y, 0.5)
	dx, dy := drv.Offset()
	assert.InDelta(t, 7, dx, 0.5)
	assert.InDelta(t, -5, dy, 0.5)
	assert.Equal(t, image.Rect(0, 0, 200, 160), snap.Frame.Bounds())
	for i, on := range snap.ChannelEnabled {
		assert.False(t, on, "channel %d left enabled", i)
	}
}
