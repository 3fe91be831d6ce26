package presenter

import "time"

// Loop aggregates feature presenters and drives periodic UI updates.
//
// The zero value is usable (methods are nil-safe).
type Loop struct {
	State    *StatePresenter
	Attempts *AttemptPresenter
	Control  *ControlPresenter
	Preview  *PreviewPresenter
	Schedule func()
}

func NewLoop(state *StatePresenter, attempts *AttemptPresenter, control *ControlPresenter, preview *PreviewPresenter, schedule func()) *Loop {
	return &Loop{State: state, Attempts: attempts, Control: control, Preview: preview, Schedule: schedule}
}

func (l *Loop) Tick() {
	if l == nil {
		return
	}
	now := time.Now()
	if l.State != nil {
		l.State.Tick(now)
	}
	if l.Attempts != nil {
		l.Attempts.Tick(now)
	}
	if l.Control != nil {
		l.Control.Tick()
	}
	if l.Preview != nil {
		l.Preview.Tick()
	}
	if l.Schedule != nil {
		l.Schedule()
	}
}
