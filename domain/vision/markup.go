package vision

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

var (
	roiColor     = color.NRGBA{R: 0, G: 160, B: 255, A: 255}
	patternColor = color.NRGBA{R: 0, G: 200, B: 0, A: 255}
	missColor    = color.NRGBA{R: 220, G: 0, B: 0, A: 255}
	targetColor  = color.NRGBA{R: 255, G: 200, B: 0, A: 255}
)

const crossArm = 6

// Markup returns an annotated copy of the frame with the ROI outline, the detected
// pattern box with its center crosshair and the target crosshair. The returned image
// has its origin at (0,0); coordinates are shifted by the frame bounds. The frame is
// never modified.
func Markup(frame Frame, roi image.Rectangle, est CenterEstimate, target Point) *image.NRGBA {
	if frame.Image == nil {
		return nil
	}
	out := imaging.Clone(frame.Image)
	origin := frame.Bounds().Min
	roi = roi.Sub(origin)

	outline := roiColor
	if !est.Valid {
		outline = missColor
	}
	drawRect(out, roi, outline)
	if est.Valid {
		if !est.Bounds.Empty() {
			drawRect(out, est.Bounds.Sub(origin), patternColor)
		}
		drawCross(out, int(est.X)-origin.X, int(est.Y)-origin.Y, patternColor)
	}
	drawCross(out, int(target.X)-origin.X, int(target.Y)-origin.Y, targetColor)
	return out
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetNRGBA(x, r.Min.Y, c)
		img.SetNRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetNRGBA(r.Min.X, y, c)
		img.SetNRGBA(r.Max.X-1, y, c)
	}
}

// drawCross draws a plus sign; SetNRGBA ignores points outside the image.
func drawCross(img *image.NRGBA, cx, cy int, c color.NRGBA) {
	for d := -crossArm; d <= crossArm; d++ {
		img.SetNRGBA(cx+d, cy, c)
		img.SetNRGBA(cx, cy+d, c)
	}
}
