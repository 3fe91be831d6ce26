package vision

import (
	"image"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// grayPrecomp stores per-pixel luma values of a search area and their summed-area
// tables. The integrals give O(1) window sum and variance queries.
type grayPrecomp struct {
	gray       []float64
	integral   []float64
	integralSq []float64
	W, H       int
}

// templatePrecomp caches luma pixels and summary statistics for a template
// (or a scaled version of it).
type templatePrecomp struct {
	gray  []float32
	W, H  int
	meanT float64
	stdT  float64
}

func newTemplatePrecomp(gray []float32, w, h int) *templatePrecomp {
	var sumT, sumT2 float64
	for _, g := range gray {
		v := float64(g)
		sumT += v
		sumT2 += v * v
	}
	n := float64(w * h)
	meanT := sumT / n
	varT := (sumT2 - sumT*sumT/n) / n
	stdT := 0.0
	if varT > 0 {
		stdT = math.Sqrt(varT)
	}
	return &templatePrecomp{gray: gray, W: w, H: h, meanT: meanT, stdT: stdT}
}

// templateCache holds the base template and its scaled variants, keyed by size.
type templateCache struct {
	mu    sync.Mutex
	base  *templatePrecomp
	byDim *lru.Cache[[2]int, *templatePrecomp]
}

const templateCacheSize = 64

func newTemplateCache(tmpl image.Image) (*templateCache, bool) {
	base := buildTemplatePrecomp(tmpl)
	if base == nil {
		return nil, false
	}
	c, err := lru.New[[2]int, *templatePrecomp](templateCacheSize)
	if err != nil {
		return nil, false
	}
	c.Add([2]int{base.W, base.H}, base)
	return &templateCache{base: base, byDim: c}, true
}

// buildTemplatePrecomp converts tmpl to luma. Transparent pixels stay zero.
func buildTemplatePrecomp(tmpl image.Image) *templatePrecomp {
	if tmpl == nil {
		return nil
	}
	b := tmpl.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	gray := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bb, a := tmpl.At(b.Min.X+x, b.Min.Y+y).RGBA()
			gray[y*w+x] = float32(luma(uint8(r>>8), uint8(g>>8), uint8(bb>>8), uint8(a>>8)))
		}
	}
	return newTemplatePrecomp(gray, w, h)
}

// scaled returns the template resized by factor using bilinear interpolation on the
// base luma data. Factors that shrink the template below 2x2 return nil.
func (c *templateCache) scaled(factor float64) *templatePrecomp {
	if factor <= 0 {
		return nil
	}
	base := c.base
	w := int(float64(base.W) * factor)
	h := int(float64(base.H) * factor)
	if w < 2 || h < 2 {
		return nil
	}
	key := [2]int{w, h}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pc, ok := c.byDim.Get(key); ok {
		return pc
	}
	gray := make([]float32, w*h)
	fx := float64(base.W) / float64(w)
	fy := float64(base.H) / float64(h)
	bw, bh := base.W, base.H
	src := base.gray
	for y := 0; y < h; y++ {
		ys := clampF((float64(y)+0.5)*fy-0.5, 0, float64(bh-1))
		y0 := int(math.Floor(ys))
		y1 := min(y0+1, bh-1)
		dy := ys - float64(y0)
		for x := 0; x < w; x++ {
			xs := clampF((float64(x)+0.5)*fx-0.5, 0, float64(bw-1))
			x0 := int(math.Floor(xs))
			x1 := min(x0+1, bw-1)
			dx := xs - float64(x0)
			top := float64(src[y0*bw+x0])*(1-dx) + float64(src[y0*bw+x1])*dx
			bottom := float64(src[y1*bw+x0])*(1-dx) + float64(src[y1*bw+x1])*dx
			gray[y*w+x] = float32(top*(1-dy) + bottom*dy)
		}
	}
	pc := newTemplatePrecomp(gray, w, h)
	c.byDim.Add(key, pc)
	return pc
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// buildGrayPrecomp computes luma values and summed-area tables for area of img.
func buildGrayPrecomp(img *image.RGBA, area image.Rectangle) *grayPrecomp {
	W, H := area.Dx(), area.Dy()
	if W <= 0 || H <= 0 {
		return nil
	}
	need := W * H
	p := &grayPrecomp{
		gray:       make([]float64, need),
		integral:   make([]float64, need),
		integralSq: make([]float64, need),
		W:          W,
		H:          H,
	}
	for y := 0; y < H; y++ {
		var rowSum, rowSum2 float64
		po := img.PixOffset(area.Min.X, area.Min.Y+y)
		for x := 0; x < W; x++ {
			px := img.Pix[po : po+4 : po+4]
			po += 4
			g := luma(px[0], px[1], px[2], px[3])
			off := y*W + x
			p.gray[off] = g
			rowSum += g
			rowSum2 += g * g
			if y == 0 {
				p.integral[off] = rowSum
				p.integralSq[off] = rowSum2
			} else {
				p.integral[off] = p.integral[(y-1)*W+x] + rowSum
				p.integralSq[off] = p.integralSq[(y-1)*W+x] + rowSum2
			}
		}
	}
	return p
}

// integralSum returns the inclusive sum over [x0..x1] x [y0..y1] of a row-major
// integral image of width W.
func integralSum(I []float64, W int, x0, y0, x1, y1 int) float64 {
	if x0 > x1 || y0 > y1 {
		return 0
	}
	at := func(x, y int) float64 {
		if x < 0 || y < 0 {
			return 0
		}
		return I[y*W+x]
	}
	return at(x1, y1) - at(x0-1, y1) - at(x1, y0-1) + at(x0-1, y0-1)
}

// nccOptions configures a single-scale match.
type nccOptions struct {
	Threshold float64 // minimum score for a positive match
	Stride    int     // coarse scan stride
	Refine    bool    // refine around the coarse best when Stride > 1
}

// nccResult holds the best window position relative to the search area.
type nccResult struct {
	X, Y  int
	Score float64
	Found bool
}

// scoreAt returns the NCC score of pc placed at (x, y), or false for a flat window.
func scoreAt(pre *grayPrecomp, pc *templatePrecomp, x, y int) (float64, bool) {
	w, h := pc.W, pc.H
	n := float64(w * h)
	sumF := integralSum(pre.integral, pre.W, x, y, x+w-1, y+h-1)
	sumF2 := integralSum(pre.integralSq, pre.W, x, y, x+w-1, y+h-1)
	meanF := sumF / n
	varF := (sumF2 - sumF*sumF/n) / n
	if varF <= 1e-9 {
		return 0, false
	}
	var sumFT float64
	for ty := 0; ty < h; ty++ {
		row := pre.gray[(y+ty)*pre.W+x:]
		trow := pc.gray[ty*w : ty*w+w]
		for tx, t := range trow {
			sumFT += row[tx] * float64(t)
		}
	}
	denom := n * math.Sqrt(varF) * pc.stdT
	if denom <= 0 {
		return 0, false
	}
	return (sumFT - n*meanF*pc.meanT) / denom, true
}

// matchNCC scans pre for the window that best correlates with pc.
// Flat templates have no defined correlation and never match.
func matchNCC(pre *grayPrecomp, pc *templatePrecomp, opts nccOptions) nccResult {
	res := nccResult{Score: -1}
	if pre == nil || pc == nil || pc.stdT <= 1e-9 || pre.W < pc.W || pre.H < pc.H {
		return res
	}
	stride := max(opts.Stride, 1)
	maxX, maxY := pre.W-pc.W, pre.H-pc.H
	bestX, bestY, best := 0, 0, -1.0
	scan := func(x0, y0, x1, y1, step int) {
		for y := y0; y <= y1; y += step {
			for x := x0; x <= x1; x += step {
				if s, ok := scoreAt(pre, pc, x, y); ok && s > best {
					best, bestX, bestY = s, x, y
				}
			}
		}
	}
	scan(0, 0, maxX, maxY, stride)
	if opts.Refine && stride > 1 && best > -1 {
		scan(max(0, bestX-stride), max(0, bestY-stride), min(maxX, bestX+stride), min(maxY, bestY+stride), 1)
	}
	res.X, res.Y, res.Score = bestX, bestY, best
	res.Found = best >= opts.Threshold
	return res
}
