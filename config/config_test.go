package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Axes, DefaultChannelCount)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval())
}

func TestValidate_RejectsInvalidValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero channels":      func(c *Config) { c.ChannelCount = 0 },
		"axes mismatch":      func(c *Config) { c.Axes = c.Axes[:3] },
		"no controlled axis": func(c *Config) { c.Axes = make([]Axis, c.ChannelCount) },
		"zero tolerance":     func(c *Config) { c.Tolerance.X = 0 },
		"negative tolerance": func(c *Config) { c.Tolerance.Y = -1 },
		"zero max step":      func(c *Config) { c.MaxStepMagnitude = 0 },
		"zero iterations":    func(c *Config) { c.MaxIterations = 0 },
		"zero debounce":      func(c *Config) { c.ConvergenceDebounceTicks = 0 },
		"negative budget":    func(c *Config) { c.DetectionRetryBudget = -1 },
		"zero tick":          func(c *Config) { c.TickIntervalMs = 0 },
		"zero ack timeout":   func(c *Config) { c.AckTimeoutMs = 0 },
		"empty roi":          func(c *Config) { c.ROI.W = 0 },
		"negative roi":       func(c *Config) { c.ROI.X = -4 },
		"inverted travel":    func(c *Config) { c.TravelMin, c.TravelMax = 10, -10 },
		"unknown locator":    func(c *Config) { c.Locator.Method = "hough" },
		"file without path":  func(c *Config) { c.Source = Source{Kind: "file"} },
		"serial without port": func(c *Config) {
			c.Driver = Driver{Kind: "serial"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "error %v should wrap ErrInvalid", err)
		})
	}
}

func TestValidate_FillsOptionalDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Axes = nil
	cfg.Gain = 0
	cfg.Locator = Locator{}
	cfg.Source.Kind = ""
	cfg.Driver.Kind = ""
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Axes, cfg.ChannelCount)
	assert.Equal(t, 1.0, cfg.Gain)
	assert.Equal(t, "centroid", cfg.Locator.Method)
	assert.Equal(t, "screen", cfg.Source.Kind)
	assert.Equal(t, "sim", cfg.Driver.Kind)
}

func TestTargetPoint_FallsBackToROIMidpoint(t *testing.T) {
	cfg := DefaultConfig()
	roi := image.Rect(10, 20, 110, 60)
	assert.Equal(t, Point{X: 60, Y: 40}, cfg.TargetPoint(roi))

	cfg.Target = &Point{X: 100, Y: 100}
	assert.Equal(t, Point{X: 100, Y: 100}, cfg.TargetPoint(roi))
}

func TestAckTimeout_PerChannelOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelAckTimeoutMs = []int{0, 50}
	assert.Equal(t, 500*time.Millisecond, cfg.AckTimeout(0))
	assert.Equal(t, 50*time.Millisecond, cfg.AckTimeout(1))
	assert.Equal(t, 500*time.Millisecond, cfg.AckTimeout(7))
}

func TestClone_IsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target = &Point{X: 1, Y: 2}
	clone := cfg.Clone()
	clone.Axes[0] = Axis{9, 9}
	clone.Target.X = 42
	assert.Equal(t, Axis{1, 0}, cfg.Axes[0])
	assert.Equal(t, 1.0, cfg.Target.X)
}

func TestLoadSave_RoundTripAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	missing, err := Load(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().ChannelCount, missing.ChannelCount)

	path := filepath.Join(dir, "needle-align.json")
	cfg := DefaultConfig()
	cfg.ChannelCount = 4
	cfg.Axes = []Axis{{1, 0}, {0, 1}, {-1, 0}, {0, 0}}
	cfg.Target = &Point{X: 320, Y: 240}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Axes, loaded.Axes)
	assert.Equal(t, *cfg.Target, *loaded.Target)
}

func TestLoad_AxesDefaultToFileChannelCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"channel_count": 3}`), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Axes, 3)
}

func TestLoad_InvalidFileReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"channel_count": 0}`), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}
