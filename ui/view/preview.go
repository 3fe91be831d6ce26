package view

import (
	"image"

	"github.com/soocke/needle-align/ui/images"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// Preview shows the annotated frame and a close-up of the model.
type Preview interface {
	UpdateFrame(img image.Image)
	UpdateCloseUp(img image.Image)
	Reset()
}

const (
	maxPreviewW = 480
	maxPreviewH = 320
	closeUpSide = 128
)

type preview struct {
	frameLabel   *LabelWidget
	closeUpLabel *LabelWidget
	prevFrame    *Img
	prevCloseUp  *Img
}

// NewPreview creates both labels. The frame spans columns 0-3; the close-up sits in
// column 4 of row.
func NewPreview(row int) Preview {
	pngBytes := placeholder()
	framePhoto := NewPhoto(Data(pngBytes))
	closePhoto := NewPhoto(Data(pngBytes))
	frame := Label(Image(framePhoto), Borderwidth(1), Relief("sunken"))
	closeUp := Label(Image(closePhoto), Borderwidth(1), Relief("sunken"))
	Grid(frame, Row(row), Column(0), Columnspan(4), Sticky("we"), Padx("0.4m"), Pady("0.4m"))
	Grid(closeUp, Row(row), Column(4), Sticky("n"), Padx("0.4m"), Pady("0.4m"))
	return &preview{frameLabel: frame, closeUpLabel: closeUp, prevFrame: framePhoto, prevCloseUp: closePhoto}
}

func placeholder() []byte {
	return images.EncodePNG(image.NewRGBA(image.Rect(0, 0, 200, 120)))
}

func (v *preview) UpdateFrame(img image.Image) {
	if v.frameLabel == nil || img == nil {
		return
	}
	v.prevFrame = replacePhoto(v.frameLabel, v.prevFrame, images.ScaleToFit(img, maxPreviewW, maxPreviewH))
}

func (v *preview) UpdateCloseUp(img image.Image) {
	if v.closeUpLabel == nil || img == nil {
		return
	}
	v.prevCloseUp = replacePhoto(v.closeUpLabel, v.prevCloseUp, images.ScaleToFit(img, closeUpSide, closeUpSide))
}

func (v *preview) Reset() {
	pngBytes := placeholder()
	if v.frameLabel != nil {
		if v.prevFrame != nil {
			v.prevFrame.Delete()
		}
		v.prevFrame = NewPhoto(Data(pngBytes))
		v.frameLabel.Configure(Image(v.prevFrame))
	}
	if v.closeUpLabel != nil {
		if v.prevCloseUp != nil {
			v.prevCloseUp.Delete()
		}
		v.prevCloseUp = NewPhoto(Data(pngBytes))
		v.closeUpLabel.Configure(Image(v.prevCloseUp))
	}
}

// replacePhoto swaps the label image and frees the old Tk photo.
func replacePhoto(lbl *LabelWidget, old *Img, img image.Image) *Img {
	if old != nil {
		old.Delete()
	}
	photo := NewPhoto(Data(images.EncodePNG(img)))
	lbl.Configure(Image(photo))
	return photo
}
