package presenter

import (
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/soocke/needle-align/domain/align"
	"github.com/soocke/needle-align/domain/vision"
	"github.com/soocke/needle-align/ui/images"
	"github.com/soocke/needle-align/ui/model"
)

// PreviewView receives the annotated frame and a close-up around the model.
type PreviewView interface {
	UpdatePreview(img image.Image)
	UpdateCloseUp(img image.Image)
}

type previewTask struct {
	snap align.Snapshot
}

type previewResult struct {
	sequence uint64
	bounds   image.Rectangle
	marked   image.Image
	closeUp  image.Image
	duration time.Duration
}

// PreviewPresenter renders markup for the last evaluated frame on a worker goroutine
// and hands finished images to the view on Tick. Frames already rendered are skipped.
type PreviewPresenter struct {
	src         align.SnapshotSource
	view        PreviewView
	rois        *model.ROIModel
	closeUpSize int
	logger      *slog.Logger

	workerOnce sync.Once
	closeOnce  sync.Once
	workers    sync.WaitGroup
	workCh     chan previewTask
	resultCh   chan previewResult
	done       chan struct{}

	lastSeq uint64
}

func NewPreviewPresenter(src align.SnapshotSource, view PreviewView, rois *model.ROIModel, closeUpSize int, logger *slog.Logger) *PreviewPresenter {
	if closeUpSize < 16 {
		closeUpSize = 16
	}
	return &PreviewPresenter{
		src:         src,
		view:        view,
		rois:        rois,
		closeUpSize: closeUpSize,
		logger:      logger,
		workCh:      make(chan previewTask, 1),
		resultCh:    make(chan previewResult, 1),
		done:        make(chan struct{}),
	}
}

// Tick delivers a finished render, if any, then schedules the newest frame.
func (p *PreviewPresenter) Tick() {
	if p == nil || p.src == nil || p.view == nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	p.workerOnce.Do(func() {
		p.workers.Add(1)
		go p.worker()
	})
	select {
	case res := <-p.resultCh:
		p.rois.SetFrameBounds(res.bounds)
		p.view.UpdatePreview(res.marked)
		if res.closeUp != nil {
			p.view.UpdateCloseUp(res.closeUp)
		}
		if p.logger != nil {
			p.logger.Debug("preview rendered", "sequence", res.sequence, "duration", res.duration)
		}
	default:
	}
	snap := p.src.Snapshot()
	if snap.Frame.Image == nil || snap.Frame.Sequence == p.lastSeq {
		return
	}
	select {
	case p.workCh <- previewTask{snap: snap}:
		p.lastSeq = snap.Frame.Sequence
	default:
		// worker busy; retried next tick
	}
}

// Close stops the render worker and waits for it. Later Ticks do nothing.
func (p *PreviewPresenter) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() { close(p.done) })
	p.workers.Wait()
}

func (p *PreviewPresenter) worker() {
	defer p.workers.Done()
	defer func() {
		if r := recover(); r != nil && p.logger != nil {
			p.logger.Error("preview worker panic", "error", r)
		}
	}()
	for {
		select {
		case task := <-p.workCh:
			res := p.render(task.snap)
			select {
			case p.resultCh <- res:
			case <-p.done:
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *PreviewPresenter) render(s align.Snapshot) previewResult {
	start := time.Now()
	marked := vision.Markup(s.Frame, s.ROI, s.LastEstimate, s.Target)
	res := previewResult{sequence: s.Frame.Sequence, bounds: s.Frame.Bounds(), marked: marked}
	if marked != nil {
		center := s.Target
		if s.LastEstimate.Valid {
			center = s.LastEstimate.Point()
		}
		origin := s.Frame.Bounds().Min
		r := images.CenteredRect(marked.Bounds(), int(center.X)-origin.X, int(center.Y)-origin.Y, p.closeUpSize)
		if c := images.Crop(marked, r); c != nil {
			res.closeUp = c
		}
	}
	res.duration = time.Since(start)
	return res
}
