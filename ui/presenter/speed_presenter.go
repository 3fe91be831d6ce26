package presenter

import (
	"log/slog"
	"time"

	"github.com/soocke/needle-align/domain/schedule"
)

// IntervalSetter is the part of the scheduler the speed control needs.
type IntervalSetter interface {
	Interval() time.Duration
	SetInterval(d time.Duration) error
}

// SpeedView shows the current speed level.
type SpeedView interface {
	SetSpeed(level int, interval time.Duration)
}

// SpeedPresenter maps the speed buttons onto the scheduler interval.
type SpeedPresenter struct {
	sched  IntervalSetter
	view   SpeedView
	logger *slog.Logger
	level  int
}

func NewSpeedPresenter(sched IntervalSetter, view SpeedView, logger *slog.Logger) *SpeedPresenter {
	p := &SpeedPresenter{sched: sched, view: view, logger: logger, level: schedule.MinSpeed}
	if sched != nil {
		p.level = schedule.IntervalToSpeed(sched.Interval())
	}
	return p
}

func (p *SpeedPresenter) Level() int { return p.level }

func (p *SpeedPresenter) Faster() { p.SetLevel(p.level + 1) }
func (p *SpeedPresenter) Slower() { p.SetLevel(p.level - 1) }

// SetLevel clamps level to the valid range and applies it.
func (p *SpeedPresenter) SetLevel(level int) {
	if p == nil || p.sched == nil {
		return
	}
	level = min(max(level, schedule.MinSpeed), schedule.MaxSpeed)
	d := schedule.SpeedToInterval(level)
	if err := p.sched.SetInterval(d); err != nil {
		if p.logger != nil {
			p.logger.Error("set tick interval", "level", level, "error", err)
		}
		return
	}
	p.level = level
	if p.view != nil {
		p.view.SetSpeed(level, d)
	}
}

// Refresh pushes the current level to the view.
func (p *SpeedPresenter) Refresh() {
	if p == nil || p.view == nil || p.sched == nil {
		return
	}
	p.view.SetSpeed(p.level, p.sched.Interval())
}
