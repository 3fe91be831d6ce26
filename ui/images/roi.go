package images

import (
	"image"

	"github.com/disintegration/imaging"
)

// CenteredRect returns a size x size rectangle centred at (cx, cy), shifted and
// clamped so that it lies inside bounds. The result is at least 1x1 when bounds is
// not empty.
func CenteredRect(bounds image.Rectangle, cx, cy, size int) image.Rectangle {
	if bounds.Empty() {
		return image.Rectangle{}
	}
	if size < 1 {
		size = 1
	}
	w := min(size, bounds.Dx())
	h := min(size, bounds.Dy())
	x0 := cx - w/2
	y0 := cy - h/2
	// keep the full size when near an edge
	x0 = max(bounds.Min.X, min(x0, bounds.Max.X-w))
	y0 = max(bounds.Min.Y, min(y0, bounds.Max.Y-h))
	return image.Rect(x0, y0, x0+w, y0+h)
}

// Crop returns a copy of r inside img, origin at (0,0). r is clipped to the image
// bounds; an empty intersection returns nil.
func Crop(img image.Image, r image.Rectangle) *image.NRGBA {
	if img == nil {
		return nil
	}
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	return imaging.Crop(img, r)
}
