package presenter

import (
	"time"

	"github.com/soocke/needle-align/domain/align"
	"github.com/soocke/needle-align/ui/model"
)

// AttemptView displays formatted attempt and total durations plus outcome counts.
type AttemptView interface {
	SetAttempt(attempt, total time.Duration, converged, failed int)
}

// AttemptPresenter formats attempt timing from the model to the view.
type AttemptPresenter struct {
	model *model.AttemptModel
	src   align.SnapshotSource
	view  AttemptView
}

func NewAttemptPresenter(m *model.AttemptModel, src align.SnapshotSource, view AttemptView) *AttemptPresenter {
	return &AttemptPresenter{model: m, src: src, view: view}
}

// Tick advances the model from the controller state and pushes values to the view.
func (p *AttemptPresenter) Tick(now time.Time) {
	if p == nil || p.model == nil || p.src == nil || p.view == nil {
		return
	}
	p.model.OnTick(p.src.Snapshot().State.Active(), now)
	a, t := p.model.Values()
	failed := p.model.Outcomes(align.StateTimedOut) + p.model.Outcomes(align.StateFaulted)
	p.view.SetAttempt(a, t, p.model.Outcomes(align.StateConverged), failed)
}
