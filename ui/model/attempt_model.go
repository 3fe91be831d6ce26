package model

import (
	"time"

	"github.com/soocke/needle-align/domain/align"
)

// AttemptModel tracks the duration of the running alignment attempt, the accumulated
// active time and how past attempts ended. The zero value is ready to use.
type AttemptModel struct {
	active       bool
	start        time.Time
	lastDuration time.Duration
	accumulated  time.Duration
	outcomes     map[align.State]int
}

// NewAttemptModel returns a pointer to a ready-to-use AttemptModel.
func NewAttemptModel() *AttemptModel { return &AttemptModel{} }

// OnTick updates the model using whether an attempt is running and the timestamp.
func (m *AttemptModel) OnTick(running bool, now time.Time) {
	if m == nil {
		return
	}
	if running {
		if !m.active {
			m.active = true
			m.start = now
			m.lastDuration = 0
		}
		m.lastDuration = now.Sub(m.start)
	} else if m.active {
		m.lastDuration = now.Sub(m.start)
		m.accumulated += m.lastDuration
		m.active = false
	}
}

// RecordOutcome counts a terminal state. Other states are ignored.
func (m *AttemptModel) RecordOutcome(s align.State) {
	if m == nil || !s.Terminal() {
		return
	}
	if m.outcomes == nil {
		m.outcomes = make(map[align.State]int)
	}
	m.outcomes[s]++
}

// Outcomes returns how many attempts ended in s.
func (m *AttemptModel) Outcomes(s align.State) int {
	if m == nil {
		return 0
	}
	return m.outcomes[s]
}

// Values returns the current attempt duration and the total accumulated duration.
// The total includes the ongoing attempt when active.
func (m *AttemptModel) Values() (attempt, total time.Duration) {
	if m == nil {
		return 0, 0
	}
	attempt = m.lastDuration
	total = m.accumulated
	if m.active {
		total += attempt
	}
	return
}
