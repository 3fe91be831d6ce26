package align

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/soocke/needle-align/domain/actuator"
)

// correction is the per-channel travel that moves the estimate onto the target.
type correction struct {
	travel    []float64 // indexed by channel, zero for unused channels
	residualX float64   // error the usable axes cannot express
	residualY float64
}

// decompose returns the minimum-norm travel m over the usable channels with A*m = e,
// where A holds the usable axis vectors as columns. When the usable axes are all
// parallel the error is projected onto their common direction and the rest is
// reported as residual. ok is false when no usable channel has a non-zero axis.
func decompose(axes []actuator.Axis, usable []bool, ex, ey float64) (correction, bool) {
	c := correction{travel: make([]float64, len(axes))}
	idx := make([]int, 0, len(axes))
	for i, a := range axes {
		if usable[i] && !a.Zero() {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		c.residualX, c.residualY = ex, ey
		return c, false
	}

	A := mat.NewDense(2, len(idx), nil)
	for col, i := range idx {
		A.Set(0, col, axes[i].X)
		A.Set(1, col, axes[i].Y)
	}
	e := mat.NewVecDense(2, []float64{ex, ey})

	var g mat.Dense
	g.Mul(A, A.T())
	trace := g.At(0, 0) + g.At(1, 1)
	var m *mat.VecDense
	if math.Abs(mat.Det(&g)) > 1e-9*trace*trace {
		var y mat.VecDense
		if err := y.SolveVec(&g, e); err == nil {
			m = new(mat.VecDense)
			m.MulVec(A.T(), &y)
		}
	}
	if m == nil {
		m = projectRankOne(A, ex, ey)
	}

	var r mat.VecDense
	r.MulVec(A, m)
	c.residualX = ex - r.AtVec(0)
	c.residualY = ey - r.AtVec(1)
	for col, i := range idx {
		c.travel[i] = m.AtVec(col)
	}
	return c, true
}

// projectRankOne solves A*m = e in the least-squares sense for parallel columns.
func projectRankOne(A *mat.Dense, ex, ey float64) *mat.VecDense {
	_, k := A.Dims()
	// direction of the longest column
	best, ux, uy := 0.0, 0.0, 0.0
	for col := 0; col < k; col++ {
		x, y := A.At(0, col), A.At(1, col)
		if n := math.Hypot(x, y); n > best {
			best, ux, uy = n, x/n, y/n
		}
	}
	coef := make([]float64, k)
	var sum float64
	for col := 0; col < k; col++ {
		coef[col] = A.At(0, col)*ux + A.At(1, col)*uy
		sum += coef[col] * coef[col]
	}
	p := ex*ux + ey*uy
	out := mat.NewVecDense(k, nil)
	for col := 0; col < k; col++ {
		out.SetVec(col, coef[col]*p/sum)
	}
	return out
}

// clampStep scales v by gain and limits its magnitude to limit.
func clampStep(v, gain, limit float64) float64 {
	v *= gain
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
