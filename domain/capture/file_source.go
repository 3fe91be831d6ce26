package capture

import (
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/soocke/needle-align/domain/vision"
)

// FileSource serves a still image loaded from disk. The file is decoded once.
type FileSource struct {
	path string

	once  sync.Once
	frame vision.Frame
	err   error
}

func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

// CurrentFrame implements FrameSource.
func (s *FileSource) CurrentFrame() (vision.Frame, error) {
	s.once.Do(func() {
		img, err := imaging.Open(s.path)
		if err != nil {
			s.err = errors.Wrapf(err, "capture: open %s", s.path)
			return
		}
		s.frame = vision.Frame{Image: ToRGBA(img), CapturedAt: time.Now(), Sequence: 1}
	})
	return s.frame, s.err
}

// ToRGBA returns img as *image.RGBA with its origin at (0,0), converting if needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
