package vision

import (
	"image"

	"gonum.org/v1/gonum/stat"
)

// CentroidOptions configures threshold-based marker detection.
type CentroidOptions struct {
	Threshold float64 // luma cut-off in 0..255
	Dark      bool    // pattern pixels are darker than Threshold
	MinPixels int     // minimum pattern pixel count for a confident match
}

// CentroidLocator segments pattern pixels by luma and returns their weighted centroid.
// The pattern must be fully visible: a pattern touching the ROI border is rejected.
type CentroidLocator struct {
	opts CentroidOptions
}

// NewCentroidLocator returns a locator with the given options. Non-positive MinPixels
// is raised to 1.
func NewCentroidLocator(opts CentroidOptions) *CentroidLocator {
	if opts.MinPixels < 1 {
		opts.MinPixels = 1
	}
	return &CentroidLocator{opts: opts}
}

// Locate implements Locator.
func (l *CentroidLocator) Locate(frame Frame, roi image.Rectangle) (CenterEstimate, error) {
	if err := CheckROI(frame, roi); err != nil {
		return CenterEstimate{}, err
	}
	img := frame.Image
	n := roi.Dx() * roi.Dy()
	xs := make([]float64, 0, n/8)
	ys := make([]float64, 0, n/8)
	ws := make([]float64, 0, n/8)
	box := image.Rectangle{}
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		off := img.PixOffset(roi.Min.X, y)
		for x := roi.Min.X; x < roi.Max.X; x++ {
			p := img.Pix[off : off+4 : off+4]
			off += 4
			v := luma(p[0], p[1], p[2], p[3])
			var w float64
			if l.opts.Dark {
				w = l.opts.Threshold - v
			} else {
				w = v - l.opts.Threshold
			}
			if w <= 0 {
				continue
			}
			// pixel centers, so a pattern covering [a,b) is centred on (a+b)/2
			xs = append(xs, float64(x)+0.5)
			ys = append(ys, float64(y)+0.5)
			ws = append(ws, w)
			box = box.Union(image.Rect(x, y, x+1, y+1))
		}
	}
	count := len(xs)
	if count < l.opts.MinPixels {
		return invalid(float64(count)), nil
	}
	if box.Min.X == roi.Min.X || box.Min.Y == roi.Min.Y || box.Max.X == roi.Max.X || box.Max.Y == roi.Max.Y {
		return invalid(float64(count)), nil
	}
	return CenterEstimate{
		X:      stat.Mean(xs, ws),
		Y:      stat.Mean(ys, ws),
		Valid:  true,
		Score:  float64(count),
		Bounds: box,
	}, nil
}

var _ Locator = (*CentroidLocator)(nil)
