package presenter

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soocke/needle-align/domain/align"
	"github.com/soocke/needle-align/ui/model"
)

// StatusView displays the published alignment snapshot.
type StatusView interface {
	SetState(s align.State, text string)
	SetStatus(text string)
	SetChannels(enabled, faulted []bool)
	SetManualEnabled(enabled bool)
}

// StatePresenter receives snapshots from the controller goroutine and reflects the
// most recent one on the next Tick, which runs on the UI thread.
type StatePresenter struct {
	view     StatusView
	attempts *model.AttemptModel

	mu      sync.Mutex
	pending []align.Snapshot

	latest  align.State
	counted string // session whose outcome is already recorded
	shown   bool
	lastMsg string
}

func NewStatePresenter(view StatusView, attempts *model.AttemptModel) *StatePresenter {
	return &StatePresenter{view: view, attempts: attempts}
}

// OnSnapshot is an align.Listener. It only queues.
func (p *StatePresenter) OnSnapshot(prev, next align.Snapshot) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.pending = append(p.pending, next)
	p.mu.Unlock()
}

// Tick processes queued snapshots. Each attempt is counted once, by its first terminal
// state; aborting an already finished attempt does not count again. The view shows only
// the last snapshot.
func (p *StatePresenter) Tick(now time.Time) {
	if p == nil || p.view == nil {
		return
	}
	p.mu.Lock()
	queued := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(queued) == 0 {
		return
	}
	for _, s := range queued {
		if s.State.Terminal() && p.firstOutcome(s) {
			p.attempts.RecordOutcome(s.State)
		}
		p.latest = s.State
	}
	last := queued[len(queued)-1]
	if !p.shown || p.lastMsg != stateText(last) {
		p.lastMsg = stateText(last)
		p.view.SetState(last.State, p.lastMsg)
		p.shown = true
	}
	p.view.SetStatus(StatusLine(last))
	p.view.SetChannels(last.ChannelEnabled, last.ChannelFaults)
	p.view.SetManualEnabled(last.ManualAllowed)
}

func (p *StatePresenter) firstOutcome(s align.Snapshot) bool {
	if s.SessionID == "" {
		return s.State != p.latest
	}
	if s.SessionID == p.counted {
		return false
	}
	p.counted = s.SessionID
	return true
}

func stateText(s align.Snapshot) string {
	text := "State: " + s.State.String()
	if s.Reason != "" && s.State.Terminal() {
		text += " (" + s.Reason + ")"
	}
	return text
}

// StatusLine formats iteration count, estimate and residual error of s.
func StatusLine(s align.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Iterations: %d", s.Iterations)
	if s.LastEstimate.Valid {
		fmt.Fprintf(&b, "  Center: (%.1f, %.1f)", s.LastEstimate.X, s.LastEstimate.Y)
		fmt.Fprintf(&b, "  Error: (%.2f, %.2f)", s.Error.X, s.Error.Y)
	} else if s.State.Active() {
		fmt.Fprintf(&b, "  Center: <searching, %d missed>", s.Misses)
	}
	fmt.Fprintf(&b, "  Target: (%.1f, %.1f)", s.Target.X, s.Target.Y)
	if s.SkippedTicks > 0 {
		fmt.Fprintf(&b, "  Skipped: %d", s.SkippedTicks)
	}
	return b.String()
}
