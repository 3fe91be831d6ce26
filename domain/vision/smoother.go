package vision

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// SmootherOptions tunes the constant-velocity Kalman filter.
type SmootherOptions struct {
	Dt       float64 // time step between estimates in ticks
	StdDevA  float64 // process noise (acceleration)
	StdDevMx float64 // measurement noise x
	StdDevMy float64 // measurement noise y
}

// DefaultSmootherOptions returns options that follow measurements closely while
// damping single-frame jitter.
func DefaultSmootherOptions() SmootherOptions {
	return SmootherOptions{Dt: 1, StdDevA: 2, StdDevMx: 0.5, StdDevMy: 0.5}
}

// Smoother filters successive valid center estimates. It is not safe for concurrent
// use; the alignment machine owns one instance per controller.
type Smoother struct {
	opts SmootherOptions
	kf   *kalman_filter.Kalman2D
}

// NewSmoother returns an empty smoother. The filter is seeded by the first estimate.
func NewSmoother(opts SmootherOptions) *Smoother {
	if opts.Dt <= 0 {
		opts.Dt = 1
	}
	return &Smoother{opts: opts}
}

// Reset discards the filter state. Called at session start.
func (s *Smoother) Reset() {
	if s == nil {
		return
	}
	s.kf = nil
}

// Smooth returns the filtered estimate. Invalid estimates pass through untouched and do
// not advance the filter.
func (s *Smoother) Smooth(est CenterEstimate) (CenterEstimate, error) {
	if s == nil || !est.Valid {
		return est, nil
	}
	if s.kf == nil {
		// no control input: the needle fixture does not move on its own between jogs
		s.kf = kalman_filter.NewKalman2D(s.opts.Dt, 0, 0, s.opts.StdDevA, s.opts.StdDevMx, s.opts.StdDevMy,
			kalman_filter.WithState2D(est.X, est.Y))
		return est, nil
	}
	s.kf.Predict()
	if err := s.kf.Update(est.X, est.Y); err != nil {
		return est, errors.Wrap(err, "vision: smoother update")
	}
	x, y := s.kf.GetState()
	out := est
	out.X, out.Y = x, y
	return out, nil
}
