package capture

import (
	"image"
	"image/color"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/soocke/needle-align/domain/vision"
)

// OffsetProvider reports the accumulated fixture displacement in pixels.
type OffsetProvider interface {
	Offset() (x, y float64)
}

// SimSource renders the model onto a plain background at center + start + the
// driver displacement. It closes the loop for demos and tests without a camera.
type SimSource struct {
	size    image.Rectangle
	model   image.Image
	center  vision.Point
	offsets OffsetProvider
	seq     atomic.Uint64
}

// NewSimSource returns a source producing w x h frames with the model centred on
// center when the fixture is aligned.
func NewSimSource(w, h int, model image.Image, center vision.Point, offsets OffsetProvider) *SimSource {
	return &SimSource{size: image.Rect(0, 0, w, h), model: model, center: center, offsets: offsets}
}

// CurrentFrame implements FrameSource.
func (s *SimSource) CurrentFrame() (vision.Frame, error) {
	if s.model == nil {
		return vision.Frame{}, ErrNoFrame
	}
	dst := image.NewRGBA(s.size)
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	var dx, dy float64
	if s.offsets != nil {
		dx, dy = s.offsets.Offset()
	}
	mb := s.model.Bounds()
	tx := s.center.X + dx - float64(mb.Dx())/2 - float64(mb.Min.X)
	ty := s.center.Y + dy - float64(mb.Dy())/2 - float64(mb.Min.Y)
	// pure translation; bilinear keeps sub-pixel positions visible to the locator
	s2d := f64.Aff3{1, 0, tx, 0, 1, ty}
	draw.BiLinear.Transform(dst, s2d, s.model, mb, draw.Over, nil)
	return vision.Frame{Image: dst, CapturedAt: time.Now(), Sequence: s.seq.Add(1)}, nil
}
