package config

import (
	"encoding/json"
	"image"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalid is wrapped by every validation failure returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// Axis is the image-space displacement produced by one unit of positive jog on a channel.
// A zero vector marks a channel that takes no part in automatic alignment.
type Axis [2]float64

// Tolerance is the accepted per-axis alignment error in pixels.
type Tolerance struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is the JSON form of an image rectangle.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rectangle converts r to an image.Rectangle.
func (r Rect) Rectangle() image.Rectangle { return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H) }

// RectFrom converts an image.Rectangle to its JSON form.
func RectFrom(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Point is a real-valued image coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Locator selects and tunes the model detection algorithm.
type Locator struct {
	Method string `json:"method"` // "centroid" or "template"

	// Centroid parameters
	Threshold   float64 `json:"threshold"`    // luma cut-off in 0..255
	DarkPattern bool    `json:"dark_pattern"` // pattern is darker than background
	MinPixels   int     `json:"min_pixels"`

	// Template parameters
	TemplatePath string  `json:"template_path"` // empty uses the embedded model
	MatchScore   float64 `json:"match_score"`
	MinScale     float64 `json:"min_scale"`
	MaxScale     float64 `json:"max_scale"`
	ScaleStep    float64 `json:"scale_step"`
	Stride       int     `json:"stride"`
	Refine       bool    `json:"refine"`
	StopOnScore  float64 `json:"stop_on_score"`
}

// Source selects where frames come from.
type Source struct {
	Kind string `json:"kind"` // "screen", "file" or "sim"
	Path string `json:"path"`
	// Offset is the initial misalignment of the simulated fixture in pixels.
	Offset Point `json:"offset"`
}

// Driver selects the actuator transport.
type Driver struct {
	Kind         string `json:"kind"` // "sim" or "serial"
	Port         string `json:"port"`
	BaudRate     int    `json:"baud_rate"`
	DataBits     int    `json:"data_bits"`
	StopBits     int    `json:"stop_bits"`
	Parity       string `json:"parity"`
	SimLatencyMs int    `json:"sim_latency_ms"`
}

// Config holds runtime configuration for the alignment loop and its collaborators.
// Fields may be loaded from a JSON file.
type Config struct {
	Debug bool `json:"debug"`

	// Actuator bank
	ChannelCount        int     `json:"channel_count"`
	Axes                []Axis  `json:"axes"`
	TravelMin           float64 `json:"travel_min"`
	TravelMax           float64 `json:"travel_max"`
	AckTimeoutMs        int     `json:"ack_timeout_ms"`
	ChannelAckTimeoutMs []int   `json:"channel_ack_timeout_ms"`

	// Convergence
	Tolerance                Tolerance `json:"tolerance"`
	MaxStepMagnitude         float64   `json:"max_step"`
	Gain                     float64   `json:"gain"`
	MaxIterations            int       `json:"max_iterations"`
	ConvergenceDebounceTicks int       `json:"convergence_debounce_ticks"`
	DetectionRetryBudget     int       `json:"detection_retry_budget"`
	TickIntervalMs           int       `json:"tick_interval_ms"`
	Smoothing                bool      `json:"smoothing"`

	// Geometry
	ROI    Rect   `json:"roi"`
	Target *Point `json:"target,omitempty"` // nil uses the ROI midpoint

	Locator Locator `json:"locator"`
	Source  Source  `json:"source"`
	Driver  Driver  `json:"driver"`
}

// DefaultChannelCount is the observed needle bank size.
const DefaultChannelCount = 12

// DefaultAxes maps channel 0 to +X and channel 1 to +Y; the remaining channels are manual only.
func DefaultAxes(n int) []Axis {
	axes := make([]Axis, n)
	if n > 0 {
		axes[0] = Axis{1, 0}
	}
	if n > 1 {
		axes[1] = Axis{0, 1}
	}
	return axes
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:                    false,
		ChannelCount:             DefaultChannelCount,
		Axes:                     DefaultAxes(DefaultChannelCount),
		TravelMin:                -500,
		TravelMax:                500,
		AckTimeoutMs:             500,
		Tolerance:                Tolerance{X: 0.5, Y: 0.5},
		MaxStepMagnitude:         3,
		Gain:                     1,
		MaxIterations:            200,
		ConvergenceDebounceTicks: 3,
		DetectionRetryBudget:     5,
		TickIntervalMs:           100,
		ROI:                      Rect{X: 0, Y: 0, W: 640, H: 480},
		Locator: Locator{
			Method:      "centroid",
			Threshold:   96,
			DarkPattern: true,
			MinPixels:   12,
			MatchScore:  0.80,
			MinScale:    0.80,
			MaxScale:    1.20,
			ScaleStep:   0.05,
			Stride:      2,
			Refine:      true,
			StopOnScore: 0.97,
		},
		Source: Source{Kind: "screen"},
		Driver: Driver{Kind: "sim", BaudRate: 115200, SimLatencyMs: 5},
	}
}

// Validate fills unset optional fields with defaults and rejects values that would make an
// alignment attempt meaningless. The returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.ChannelCount <= 0 {
		return errors.Wrapf(ErrInvalid, "channel_count must be positive, got %d", c.ChannelCount)
	}
	if len(c.Axes) == 0 {
		c.Axes = DefaultAxes(c.ChannelCount)
	}
	if len(c.Axes) != c.ChannelCount {
		return errors.Wrapf(ErrInvalid, "axes has %d entries for %d channels", len(c.Axes), c.ChannelCount)
	}
	controlled := 0
	for i, a := range c.Axes {
		if math.IsNaN(a[0]) || math.IsNaN(a[1]) || math.IsInf(a[0], 0) || math.IsInf(a[1], 0) {
			return errors.Wrapf(ErrInvalid, "axis %d is not finite", i)
		}
		if a[0] != 0 || a[1] != 0 {
			controlled++
		}
	}
	if controlled == 0 {
		return errors.Wrap(ErrInvalid, "no channel has a non-zero axis")
	}
	if c.Tolerance.X <= 0 || c.Tolerance.Y <= 0 {
		return errors.Wrapf(ErrInvalid, "tolerance must be positive, got %+v", c.Tolerance)
	}
	if c.MaxStepMagnitude <= 0 {
		return errors.Wrapf(ErrInvalid, "max_step must be positive, got %g", c.MaxStepMagnitude)
	}
	if c.Gain == 0 {
		c.Gain = d.Gain
	}
	if c.Gain < 0 {
		return errors.Wrapf(ErrInvalid, "gain must be positive, got %g", c.Gain)
	}
	if c.MaxIterations <= 0 {
		return errors.Wrapf(ErrInvalid, "max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.ConvergenceDebounceTicks <= 0 {
		return errors.Wrapf(ErrInvalid, "convergence_debounce_ticks must be positive, got %d", c.ConvergenceDebounceTicks)
	}
	if c.DetectionRetryBudget < 0 {
		return errors.Wrapf(ErrInvalid, "detection_retry_budget must not be negative, got %d", c.DetectionRetryBudget)
	}
	if c.TickIntervalMs <= 0 {
		return errors.Wrapf(ErrInvalid, "tick_interval_ms must be positive, got %d", c.TickIntervalMs)
	}
	if c.AckTimeoutMs <= 0 {
		return errors.Wrapf(ErrInvalid, "ack_timeout_ms must be positive, got %d", c.AckTimeoutMs)
	}
	if len(c.ChannelAckTimeoutMs) > c.ChannelCount {
		return errors.Wrapf(ErrInvalid, "channel_ack_timeout_ms has %d entries for %d channels", len(c.ChannelAckTimeoutMs), c.ChannelCount)
	}
	for i, ms := range c.ChannelAckTimeoutMs {
		if ms < 0 {
			return errors.Wrapf(ErrInvalid, "channel %d ack timeout must not be negative", i)
		}
	}
	if c.TravelMin == 0 && c.TravelMax == 0 {
		c.TravelMin, c.TravelMax = d.TravelMin, d.TravelMax
	}
	if c.TravelMax <= c.TravelMin {
		return errors.Wrapf(ErrInvalid, "travel range [%g,%g] is empty", c.TravelMin, c.TravelMax)
	}
	if c.ROI.W <= 0 || c.ROI.H <= 0 {
		return errors.Wrapf(ErrInvalid, "roi must have positive size, got %dx%d", c.ROI.W, c.ROI.H)
	}
	if c.ROI.X < 0 || c.ROI.Y < 0 {
		return errors.Wrapf(ErrInvalid, "roi origin must not be negative, got (%d,%d)", c.ROI.X, c.ROI.Y)
	}
	if err := c.Locator.normalize(d.Locator); err != nil {
		return err
	}
	switch c.Source.Kind {
	case "":
		c.Source.Kind = d.Source.Kind
	case "screen", "sim":
	case "file":
		if c.Source.Path == "" {
			return errors.Wrap(ErrInvalid, "file source needs a path")
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown source kind %q", c.Source.Kind)
	}
	switch c.Driver.Kind {
	case "":
		c.Driver.Kind = d.Driver.Kind
	case "sim":
	case "serial":
		if c.Driver.Port == "" {
			return errors.Wrap(ErrInvalid, "serial driver needs a port")
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown driver kind %q", c.Driver.Kind)
	}
	if c.Driver.SimLatencyMs < 0 {
		c.Driver.SimLatencyMs = 0
	}
	return nil
}

func (l *Locator) normalize(d Locator) error {
	switch l.Method {
	case "":
		l.Method = d.Method
	case "centroid", "template":
	default:
		return errors.Wrapf(ErrInvalid, "unknown locator method %q", l.Method)
	}
	if l.Threshold <= 0 || l.Threshold >= 255 {
		l.Threshold = d.Threshold
	}
	if l.MinPixels <= 0 {
		l.MinPixels = d.MinPixels
	}
	if l.MatchScore <= 0 || l.MatchScore > 1 {
		l.MatchScore = d.MatchScore
	}
	if l.MinScale <= 0 {
		l.MinScale = d.MinScale
	}
	if l.MaxScale <= 0 || l.MaxScale < l.MinScale {
		l.MaxScale = l.MinScale + (d.MaxScale - d.MinScale)
	}
	if l.ScaleStep <= 0 {
		l.ScaleStep = d.ScaleStep
	}
	if l.Stride <= 0 {
		l.Stride = d.Stride
	}
	if l.StopOnScore < 0 || l.StopOnScore > 1 {
		l.StopOnScore = d.StopOnScore
	}
	return nil
}

// TickInterval returns the configured scheduler cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// AckTimeout returns the acknowledgment timeout of channel i.
func (c *Config) AckTimeout(i int) time.Duration {
	if i >= 0 && i < len(c.ChannelAckTimeoutMs) && c.ChannelAckTimeoutMs[i] > 0 {
		return time.Duration(c.ChannelAckTimeoutMs[i]) * time.Millisecond
	}
	return time.Duration(c.AckTimeoutMs) * time.Millisecond
}

// TargetPoint returns the configured target or the midpoint of roi.
func (c *Config) TargetPoint(roi image.Rectangle) Point {
	if c.Target != nil {
		return *c.Target
	}
	return Point{
		X: float64(roi.Min.X) + float64(roi.Dx())/2,
		Y: float64(roi.Min.Y) + float64(roi.Dy())/2,
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Axes = append([]Axis(nil), c.Axes...)
	out.ChannelAckTimeoutMs = append([]int(nil), c.ChannelAckTimeoutMs...)
	if c.Target != nil {
		t := *c.Target
		out.Target = &t
	}
	return &out
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). Decoding and validation errors are returned alongside the
// partially applied config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()
	// axes default to the channel count of the file, not of DefaultConfig
	cfg.Axes = nil
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
