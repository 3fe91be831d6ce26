package capture

import (
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/vova616/screenshot"

	"github.com/soocke/needle-align/domain/vision"
)

const captureStatsLogInterval = 5 * time.Second

// GrabFunc captures one image of region. An empty region means the whole screen.
type GrabFunc func(region image.Rectangle) (*image.RGBA, error)

// GrabScreen captures region of the primary screen.
func GrabScreen(region image.Rectangle) (*image.RGBA, error) {
	if region.Empty() {
		return screenshot.CaptureScreen()
	}
	return screenshot.CaptureRect(region)
}

type captureService struct {
	running      atomic.Bool
	latest       atomic.Pointer[vision.Frame]
	grab         GrabFunc
	region       image.Rectangle
	pause        time.Duration
	logger       *slog.Logger
	captures     atomic.Uint64
	skipped      atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
}

// NewCaptureService returns a service grabbing region of the screen. Once started it
// refreshes the latest frame in the background; while stopped CurrentFrame grabs on
// demand. grab may be nil to use GrabScreen.
func NewCaptureService(logger *slog.Logger, region image.Rectangle, grab GrabFunc) Service {
	if grab == nil {
		grab = GrabScreen
	}
	return &captureService{grab: grab, region: region, pause: 20 * time.Millisecond, logger: logger}
}

// CurrentFrame implements FrameSource.
func (s *captureService) CurrentFrame() (vision.Frame, error) {
	if s.running.Load() {
		if f := s.latest.Load(); f != nil {
			return *f, nil
		}
	}
	if f, ok := s.captureOnce(); ok {
		return f, nil
	}
	return vision.Frame{}, ErrNoFrame
}

func (s *captureService) Running() bool { return s.running.Load() }

func (s *captureService) Stats() CaptureStats {
	captures := s.captures.Load()
	skipped := s.skipped.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	var last time.Time
	var seq uint64
	if f := s.latest.Load(); f != nil {
		last, seq = f.CapturedAt, f.Sequence
	}
	age := time.Duration(0)
	if !last.IsZero() {
		age = time.Since(last)
	}
	return CaptureStats{
		Captures:         captures,
		Skipped:          skipped,
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      last,
		LatestFrameAge:   age,
		Sequence:         seq,
	}
}

func (s *captureService) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	go s.loop()
}

func (s *captureService) Stop() { s.running.Store(false) }

func (s *captureService) loop() {
	logTicker := time.NewTicker(captureStatsLogInterval)
	defer logTicker.Stop()
	for s.running.Load() {
		if _, ok := s.captureOnce(); !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		select {
		case <-logTicker.C:
			s.logStats()
		default:
		}
		time.Sleep(s.pause)
	}
}

func (s *captureService) captureOnce() (vision.Frame, bool) {
	start := time.Now()
	img, err := s.grab(s.region)
	if err != nil || img == nil {
		s.skipped.Add(1)
		if err == nil {
			err = errors.New("grab returned no image")
		}
		if s.logger != nil {
			s.logger.Error("capture region", "region", s.region.String(), "error", err)
		}
		return vision.Frame{}, false
	}
	s.captureNanos.Add(uint64(time.Since(start).Nanoseconds()))
	s.captures.Add(1)
	f := vision.Frame{Image: img, CapturedAt: time.Now(), Sequence: s.sequence.Add(1)}
	s.latest.Store(&f)
	return f, true
}

func (s *captureService) logStats() {
	if s.logger == nil {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"skipped", stats.Skipped,
		"avg_capture", stats.AvgCapture,
		"age", stats.LatestFrameAge,
	)
}
