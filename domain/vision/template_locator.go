package vision

import (
	"image"

	"github.com/pkg/errors"
)

// TemplateOptions configures NCC template matching of the reference model.
type TemplateOptions struct {
	MatchScore  float64 // minimum NCC score for a valid estimate
	MinScale    float64
	MaxScale    float64
	ScaleStep   float64
	Stride      int
	Refine      bool
	StopOnScore float64
}

// TemplateLocator finds the model by masked normalized cross-correlation of a reference
// image over the ROI at several scales. The center is the middle of the matched window.
type TemplateLocator struct {
	cache *templateCache
	opts  TemplateOptions
}

// NewTemplateLocator prepares tmpl for matching.
func NewTemplateLocator(tmpl image.Image, opts TemplateOptions) (*TemplateLocator, error) {
	cache, ok := newTemplateCache(tmpl)
	if !ok {
		return nil, errors.New("vision: template is empty")
	}
	if cache.base.stdT <= 1e-9 {
		return nil, errors.New("vision: template has no contrast")
	}
	if opts.MatchScore <= 0 || opts.MatchScore > 1 {
		opts.MatchScore = 0.80
	}
	return &TemplateLocator{cache: cache, opts: opts}, nil
}

// Locate implements Locator.
func (l *TemplateLocator) Locate(frame Frame, roi image.Rectangle) (CenterEstimate, error) {
	if err := CheckROI(frame, roi); err != nil {
		return CenterEstimate{}, err
	}
	pre := buildGrayPrecomp(frame.Image, roi)
	res := multiScaleMatch(pre, l.cache, multiScaleOptions{
		MinScale:  l.opts.MinScale,
		MaxScale:  l.opts.MaxScale,
		ScaleStep: l.opts.ScaleStep,
		NCC: nccOptions{
			Threshold: l.opts.MatchScore,
			Stride:    l.opts.Stride,
			Refine:    l.opts.Refine,
		},
		StopOnScore: l.opts.StopOnScore,
	})
	if !res.Found {
		return invalid(res.Score), nil
	}
	box := image.Rect(res.X, res.Y, res.X+res.W, res.Y+res.H).Add(roi.Min)
	return CenterEstimate{
		X:      float64(box.Min.X) + float64(res.W)/2,
		Y:      float64(box.Min.Y) + float64(res.H)/2,
		Valid:  true,
		Score:  res.Score,
		Bounds: box,
	}, nil
}

var _ Locator = (*TemplateLocator)(nil)
