package align

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/soocke/needle-align/config"
	"github.com/soocke/needle-align/domain/actuator"
	"github.com/soocke/needle-align/domain/vision"
)

// session is the state of one alignment attempt.
type session struct {
	id         string
	started    time.Time
	target     vision.Point
	iterations int
	misses     int
	confirming int
	clamped    []bool // last automatic jog per channel hit a travel or step limit
}

// Machine is the synchronous alignment state machine. It is not safe for concurrent
// use; Controller serializes every call on its own goroutine.
type Machine struct {
	cfg      *config.Config
	locator  vision.Locator
	source   FrameSource
	bank     *actuator.Bank
	smoother *vision.Smoother
	logger   *slog.Logger

	state    State
	roi      image.Rectangle
	session  *session
	estimate vision.CenterEstimate
	lastErr  vision.Point
	reason   string
	frame    vision.Frame
	bounds   image.Rectangle // size of the last frame seen, empty before the first
}

// NewMachine validates cfg and returns a machine in Idle. smoother may be nil.
func NewMachine(cfg *config.Config, locator vision.Locator, source FrameSource, bank *actuator.Bank, smoother *vision.Smoother, logger *slog.Logger) (*Machine, error) {
	if cfg == nil {
		return nil, errors.Wrap(config.ErrInvalid, "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if locator == nil || source == nil || bank == nil {
		return nil, errors.New("align: locator, source and bank are required")
	}
	if bank.Len() != cfg.ChannelCount {
		return nil, errors.Wrapf(config.ErrInvalid, "bank has %d channels, config %d", bank.Len(), cfg.ChannelCount)
	}
	bank.DisableAll()
	return &Machine{
		cfg:      cfg,
		locator:  locator,
		source:   source,
		bank:     bank,
		smoother: smoother,
		logger:   logger,
		roi:      cfg.ROI.Rectangle(),
	}, nil
}

func (m *Machine) State() State { return m.state }

// Start begins a new attempt from Idle or any terminal state.
func (m *Machine) Start(now time.Time) error {
	if m.state.Active() {
		return ErrSessionActive
	}
	t := m.cfg.TargetPoint(m.roi)
	m.session = &session{
		id:      uuid.NewString(),
		started: now,
		target:  vision.Point{X: t.X, Y: t.Y},
		clamped: make([]bool, m.bank.Len()),
	}
	m.estimate = vision.CenterEstimate{}
	m.lastErr = vision.Point{}
	m.reason = ""
	m.smoother.Reset()
	m.bank.ResetFaults()
	m.bank.EnableAll()
	m.transition(StateSearching)
	return nil
}

// Abort ends the attempt. Returns false when there was nothing to abort.
func (m *Machine) Abort() bool {
	m.bank.DisableAll()
	if m.state == StateIdle || m.state == StateAborted {
		return false
	}
	if m.session != nil {
		m.session.iterations = 0
	}
	m.reason = "aborted by operator"
	m.transition(StateAborted)
	return true
}

// Reset acknowledges a terminal state and returns to Idle.
func (m *Machine) Reset() error {
	switch {
	case m.state == StateIdle:
		return nil
	case m.state.Terminal():
		m.session = nil
		m.estimate = vision.CenterEstimate{}
		m.lastErr = vision.Point{}
		m.reason = ""
		m.transition(StateIdle)
		return nil
	default:
		return errors.Wrapf(ErrInvalidState, "reset in %s", m.state)
	}
}

// SetROI replaces the region of interest. Once a frame has been seen the ROI must lie
// inside it. The target of a running session is not changed.
func (m *Machine) SetROI(r image.Rectangle) error {
	if r.Empty() || r.Min.X < 0 || r.Min.Y < 0 {
		return errors.Wrapf(vision.ErrROIOutOfBounds, "roi %v", r)
	}
	if !m.bounds.Empty() && !r.In(m.bounds) {
		return errors.Wrapf(vision.ErrROIOutOfBounds, "roi %v frame %v", r, m.bounds)
	}
	m.roi = r
	return nil
}

// ManualJog moves a single channel while no attempt is running. The channel is
// enabled only for the duration of the jog.
func (m *Machine) ManualJog(ctx context.Context, channel int, dir actuator.Direction, magnitude float64) (actuator.JogResult, error) {
	if m.state.Active() {
		return actuator.JogResult{}, ErrSessionActive
	}
	ch, err := m.bank.Channel(channel)
	if err != nil {
		return actuator.JogResult{}, err
	}
	ch.SetEnabled(true)
	defer ch.SetEnabled(false)
	res, err := ch.Jog(ctx, dir, math.Min(math.Abs(magnitude), m.cfg.MaxStepMagnitude))
	if m.logger != nil {
		m.logger.Info("manual jog", "channel", channel, "dir", dir.String(), "applied", res.Applied, "clamped", res.Clamped, "error", err)
	}
	return res, err
}

// Cycle runs one evaluation: pull a frame, locate the model, compare with the target
// and dispatch one correction. It does nothing outside Searching and Adjusting.
func (m *Machine) Cycle(ctx context.Context) {
	if !m.state.Active() {
		return
	}
	est := m.detect()
	m.estimate = est
	s := m.session
	if !est.Valid {
		s.misses++
		s.confirming = 0
		if m.logger != nil {
			m.logger.Debug("model not found", "misses", s.misses, "budget", m.cfg.DetectionRetryBudget, "state", m.state.String())
		}
		if s.misses > m.cfg.DetectionRetryBudget {
			m.finish(StateFaulted, fmt.Sprintf("model not found in %d consecutive frames", s.misses))
		}
		return
	}
	s.misses = 0
	if m.state == StateSearching {
		m.transition(StateAdjusting)
	}
	m.adjust(ctx, est)
}

func (m *Machine) detect() vision.CenterEstimate {
	frame, err := m.source.CurrentFrame()
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("frame unavailable", "error", err)
		}
		return vision.CenterEstimate{}
	}
	m.frame = frame
	m.bounds = frame.Bounds()
	est, err := m.locator.Locate(frame, m.roi)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("locate failed", "roi", m.roi.String(), "error", err)
		}
		return vision.CenterEstimate{}
	}
	if !est.Valid || m.smoother == nil || !m.cfg.Smoothing {
		return est
	}
	smoothed, err := m.smoother.Smooth(est)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("smoothing failed", "error", err)
		}
		return est
	}
	return smoothed
}

func (m *Machine) adjust(ctx context.Context, est vision.CenterEstimate) {
	s := m.session
	ex := s.target.X - est.X
	ey := s.target.Y - est.Y
	m.lastErr = vision.Point{X: ex, Y: ey}
	if math.Abs(ex) <= m.cfg.Tolerance.X {
		ex = 0
	}
	if math.Abs(ey) <= m.cfg.Tolerance.Y {
		ey = 0
	}
	if ex == 0 && ey == 0 {
		s.confirming++
		if s.confirming >= m.cfg.ConvergenceDebounceTicks {
			m.finish(StateConverged, "")
		}
		return
	}
	s.confirming = 0
	if s.iterations >= m.cfg.MaxIterations {
		m.finish(StateTimedOut, fmt.Sprintf("not aligned after %d iterations", s.iterations))
		return
	}

	axes := m.bank.Axes()
	usable := m.usable()
	corr, ok := decompose(axes, usable, ex, ey)
	if !ok || !m.withinTolerance(corr) {
		m.finish(StateFaulted, "correction not reachable with the remaining channels")
		return
	}
	jogs := make([]actuator.Jog, 0, len(axes))
	for i, v := range corr.travel {
		step := clampStep(v, m.cfg.Gain, m.cfg.MaxStepMagnitude)
		if math.Abs(step) < 1e-9 {
			continue
		}
		jogs = append(jogs, actuator.Jog{Channel: i, Dir: actuator.DirectionOf(step), Magnitude: math.Abs(step)})
	}
	// an evaluation counts against the budget even when every step is below resolution
	s.iterations++
	if len(jogs) == 0 {
		m.reason = "correction below actuator resolution"
		return
	}
	if m.logger != nil {
		m.logger.Debug("correction", "iteration", s.iterations, "error_x", ex, "error_y", ey, "jogs", len(jogs))
	}
	for _, o := range m.bank.Dispatch(ctx, jogs) {
		if o.Err == nil {
			s.clamped[o.Channel] = o.Result.Clamped
			if o.Result.Clamped {
				m.reason = fmt.Sprintf("channel %d clamped at %.3f", o.Channel, o.Result.Position)
				if m.logger != nil {
					m.logger.Warn("channel clamped", "session", s.id, "channel", o.Channel, "applied", o.Result.Applied, "position", o.Result.Position)
				}
			}
			continue
		}
		if errors.Is(o.Err, actuator.ErrChannelDisabled) || errors.Is(o.Err, context.Canceled) {
			continue
		}
		m.reason = fmt.Sprintf("channel %d: %v", o.Channel, o.Err)
		if m.logger != nil {
			m.logger.Warn("channel fault", "session", s.id, "channel", o.Channel, "error", o.Err)
		}
	}
	if after, ok := decompose(axes, m.usable(), ex, ey); !ok || !m.withinTolerance(after) {
		m.finish(StateFaulted, "correction not reachable with the remaining channels")
	}
}

func (m *Machine) usable() []bool {
	faults := m.bank.Faults()
	out := make([]bool, len(faults))
	for i, f := range faults {
		out[i] = !f
	}
	return out
}

func (m *Machine) withinTolerance(c correction) bool {
	return math.Abs(c.residualX) <= m.cfg.Tolerance.X && math.Abs(c.residualY) <= m.cfg.Tolerance.Y
}

// finish enters a terminal state. Every terminal state leaves the channels disabled.
func (m *Machine) finish(next State, reason string) {
	m.bank.DisableAll()
	if reason != "" {
		m.reason = reason
	}
	m.transition(next)
}

func (m *Machine) transition(next State) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	if m.logger == nil {
		return
	}
	attrs := []any{"from", prev.String(), "to", next.String()}
	if m.session != nil {
		attrs = append(attrs, "session", m.session.id, "iterations", m.session.iterations)
	}
	if m.reason != "" && next.Terminal() {
		attrs = append(attrs, "reason", m.reason)
	}
	m.logger.Info("alignment state transition", attrs...)
}

// Snapshot returns the current view of the machine.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		State:          m.state,
		LastEstimate:   m.estimate,
		Error:          m.lastErr,
		ROI:            m.roi,
		ChannelFaults:  m.bank.Faults(),
		ChannelEnabled: m.bank.EnabledStates(),
		Reason:         m.reason,
		ManualAllowed:  !m.state.Active(),
		Frame:          m.frame,
	}
	if s := m.session; s != nil {
		snap.Iterations = s.iterations
		snap.Misses = s.misses
		snap.Confirming = s.confirming
		snap.Target = s.target
		snap.SessionID = s.id
		snap.StartedAt = s.started
		snap.ChannelClamped = append([]bool(nil), s.clamped...)
	} else {
		t := m.cfg.TargetPoint(m.roi)
		snap.Target = vision.Point{X: t.X, Y: t.Y}
	}
	return snap
}
