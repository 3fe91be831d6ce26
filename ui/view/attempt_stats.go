package view

import (
	"fmt"
	"time"

	//lint:ignore ST1001 Dot import for concise Tk widget DSL.
	. "modernc.org/tk9.0"
)

// AttemptStats shows the running attempt duration, total active time and outcomes.
type AttemptStats interface {
	Set(attempt, total time.Duration, converged, failed int)
}

type attemptStats struct {
	attemptLbl *LabelWidget
	totalLbl   *LabelWidget
	outcomeLbl *LabelWidget
}

// NewAttemptStats creates the labels at (row, startCol..startCol+2) inside parent.
func NewAttemptStats(parent *FrameWidget, row, startCol int) AttemptStats {
	s := &attemptStats{attemptLbl: Label(Width(16)), totalLbl: Label(Width(14)), outcomeLbl: Label(Width(22))}
	for i, l := range []*LabelWidget{s.attemptLbl, s.totalLbl, s.outcomeLbl} {
		Grid(l, In(parent), Row(row), Column(startCol+i), Sticky("w"), Padx("0.2m"))
	}
	s.Set(0, 0, 0, 0)
	return s
}

func (s *attemptStats) Set(attempt, total time.Duration, converged, failed int) {
	if s == nil || s.attemptLbl == nil {
		return
	}
	s.attemptLbl.Configure(Txt("Attempt: " + clock(attempt)))
	s.totalLbl.Configure(Txt("Total: " + clock(total)))
	s.outcomeLbl.Configure(Txt(fmt.Sprintf("Aligned: %d  Failed: %d", converged, failed)))
}

func clock(d time.Duration) string {
	seconds := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
