package model

import (
	"image"
)

// ROIModel holds the region of interest shown and edited in the UI along with the
// size of the last frame. Updates occur on the UI thread tick.
type ROIModel struct {
	roi   image.Rectangle
	frame image.Rectangle
}

func NewROIModel(initial image.Rectangle) *ROIModel { return &ROIModel{roi: initial} }

// SetROI stores r. Empty rectangles are ignored.
func (m *ROIModel) SetROI(r image.Rectangle) {
	if m == nil || r.Empty() {
		return
	}
	m.roi = r
}

func (m *ROIModel) ROI() image.Rectangle {
	if m == nil {
		return image.Rectangle{}
	}
	return m.roi
}

// SetFrameBounds records the bounds of the latest frame.
func (m *ROIModel) SetFrameBounds(b image.Rectangle) {
	if m == nil {
		return
	}
	m.frame = b
}

func (m *ROIModel) FrameBounds() image.Rectangle {
	if m == nil {
		return image.Rectangle{}
	}
	return m.frame
}
