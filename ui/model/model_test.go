package model

import (
	"image"
	"testing"
	"time"

	"github.com/soocke/needle-align/domain/align"
)

func TestAttemptModel_BasicLifecycle(t *testing.T) {
	m := NewAttemptModel()
	base := time.Unix(0, 0)

	m.OnTick(true, base)
	m.OnTick(true, base.Add(5*time.Second))
	attempt, total := m.Values()
	if attempt != 5*time.Second || total != 5*time.Second {
		t.Fatalf("expected 5s attempt & total; got attempt=%v total=%v", attempt, total)
	}

	m.OnTick(false, base.Add(5*time.Second))
	m.OnTick(false, base.Add(7*time.Second))
	attempt, total = m.Values()
	if attempt != 5*time.Second || total != 5*time.Second {
		t.Fatalf("idle ticks should not change durations; got attempt=%v total=%v", attempt, total)
	}

	m.OnTick(true, base.Add(10*time.Second))
	m.OnTick(true, base.Add(13*time.Second))
	attempt, total = m.Values()
	if attempt != 3*time.Second || total != 8*time.Second {
		t.Fatalf("second attempt expected 3s/8s; got attempt=%v total=%v", attempt, total)
	}
}

func TestAttemptModel_Outcomes(t *testing.T) {
	var m AttemptModel
	m.RecordOutcome(align.StateConverged)
	m.RecordOutcome(align.StateConverged)
	m.RecordOutcome(align.StateFaulted)
	m.RecordOutcome(align.StateAdjusting)
	if got := m.Outcomes(align.StateConverged); got != 2 {
		t.Fatalf("converged = %d", got)
	}
	if got := m.Outcomes(align.StateFaulted); got != 1 {
		t.Fatalf("faulted = %d", got)
	}
	if got := m.Outcomes(align.StateAdjusting); got != 0 {
		t.Fatalf("non terminal states must not be counted, got %d", got)
	}
	var nilModel *AttemptModel
	nilModel.RecordOutcome(align.StateConverged)
	if nilModel.Outcomes(align.StateConverged) != 0 {
		t.Fatalf("nil model should report zero")
	}
}

func TestROIModel(t *testing.T) {
	m := NewROIModel(image.Rect(0, 0, 10, 10))
	m.SetROI(image.Rectangle{})
	if m.ROI() != image.Rect(0, 0, 10, 10) {
		t.Fatalf("empty rect should be ignored")
	}
	m.SetROI(image.Rect(5, 5, 20, 20))
	m.SetFrameBounds(image.Rect(0, 0, 640, 480))
	if m.ROI() != image.Rect(5, 5, 20, 20) || m.FrameBounds().Dx() != 640 {
		t.Fatalf("unexpected model %v %v", m.ROI(), m.FrameBounds())
	}
}
