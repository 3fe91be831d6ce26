package vision

import (
	"sync"
)

// scaleBatch is the number of scales evaluated in parallel before the early-stop check.
// It is fixed so results do not depend on the host CPU count.
const scaleBatch = 4

// multiScaleOptions configures template matching across scale factors.
type multiScaleOptions struct {
	MinScale    float64
	MaxScale    float64
	ScaleStep   float64
	NCC         nccOptions
	StopOnScore float64 // 0 disables early stop
}

// multiScaleResult is the best match found across scales.
type multiScaleResult struct {
	nccResult
	Scale           float64
	W, H            int // matched template size
	ScalesEvaluated int
}

func (o multiScaleOptions) factors() []float64 {
	if o.MinScale <= 0 || o.MaxScale < o.MinScale || o.ScaleStep <= 0 {
		return []float64{1}
	}
	maxSteps := min(1+int((o.MaxScale-o.MinScale)/o.ScaleStep+0.5), 200)
	out := make([]float64, 0, maxSteps)
	for s := o.MinScale; s <= o.MaxScale+1e-9 && len(out) < maxSteps; s += o.ScaleStep {
		out = append(out, s)
	}
	return out
}

// multiScaleMatch evaluates the cached template at each scale in fixed-size parallel
// batches and returns the best match. Ties resolve to the earlier scale, so identical
// inputs always produce identical results.
func multiScaleMatch(pre *grayPrecomp, cache *templateCache, opts multiScaleOptions) multiScaleResult {
	best := multiScaleResult{nccResult: nccResult{Score: -1}}
	if pre == nil || cache == nil {
		return best
	}
	factors := opts.factors()
	for start := 0; start < len(factors); start += scaleBatch {
		end := min(start+scaleBatch, len(factors))
		batch := make([]multiScaleResult, end-start)
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(slot int, factor float64) {
				defer wg.Done()
				r := multiScaleResult{nccResult: nccResult{Score: -1}, Scale: factor}
				pc := cache.scaled(factor)
				if pc == nil {
					batch[slot] = r
					return
				}
				r.nccResult = matchNCC(pre, pc, opts.NCC)
				r.W, r.H = pc.W, pc.H
				r.ScalesEvaluated = 1
				batch[slot] = r
			}(i-start, factors[i])
		}
		wg.Wait()
		for _, r := range batch {
			best.ScalesEvaluated += r.ScalesEvaluated
			if r.Score > best.Score {
				evaluated := best.ScalesEvaluated
				best = r
				best.ScalesEvaluated = evaluated
			}
		}
		if opts.StopOnScore > 0 && best.Score >= opts.StopOnScore {
			break
		}
	}
	return best
}
