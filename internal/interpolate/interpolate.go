// Package interpolate implements the predictor's two interpolated
// functions: P(t), the cumulative predicted production, and its
// antiderivative Q(t) = ∫ P. spec.md §1's Non-goals leave the
// interpolation method unspecified; no example repo or
// original_source dependency bundles a numerical library (see
// DESIGN.md), so this is a dependency-free, monotone piecewise-linear
// interpolant with a matching piecewise-quadratic antiderivative.
package interpolate

import (
	"fmt"
	"sort"

	"cossmic/internal/id"
)

// Point is one (t, value) sample.
type Point struct {
	T     id.Time
	Value float64
}

// Function is a read-only, monotone piecewise-linear interpolant over a
// fixed domain. Once built it is never mutated — callers always see
// either a complete old Function or a complete new one, never a partial
// update (spec.md §4.4's swap invariant).
type Function struct {
	points []Point // sorted by T, deduplicated
}

// New builds a Function from samples, which need not be pre-sorted but
// must not be empty. Duplicate abscissae keep the last value seen.
func New(samples []Point) (Function, error) {
	if len(samples) == 0 {
		return Function{}, fmt.Errorf("interpolate: at least one sample required")
	}
	sorted := append([]Point(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T })

	deduped := sorted[:0:0]
	for _, p := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].T == p.T {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return Function{points: deduped}, nil
}

// Domain returns the interval the function is defined over.
func (f Function) Domain() id.TimeInterval {
	return id.TimeInterval{Lo: f.points[0].T, Hi: f.points[len(f.points)-1].T}
}

// At evaluates the function at t, clamped to the domain.
func (f Function) At(t id.Time) float64 {
	pts := f.points
	if t <= pts[0].T {
		return pts[0].Value
	}
	if t >= pts[len(pts)-1].T {
		return pts[len(pts)-1].Value
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].T >= t })
	if pts[i].T == t {
		return pts[i].Value
	}
	lo, hi := pts[i-1], pts[i]
	frac := float64(t-lo.T) / float64(hi.T-lo.T)
	return lo.Value + frac*(hi.Value-lo.Value)
}

// Abscissae returns the sample times the function was built from, the
// same abscissae the antiderivative must be cached at (spec.md §3).
func (f Function) Abscissae() []id.Time {
	out := make([]id.Time, len(f.points))
	for i, p := range f.points {
		out[i] = p.T
	}
	return out
}

// Integrate computes the piecewise-quadratic antiderivative Q of f,
// sampled at f's own abscissae.
// Q(points[0].T) = 0, matching P's "P(t0) = 0" invariant once P has
// been rebased (see the predictor's installPrediction).
func (f Function) Integrate() Function {
	pts := f.points
	out := make([]Point, len(pts))
	out[0] = Point{T: pts[0].T, Value: 0}
	var acc float64
	for i := 1; i < len(pts); i++ {
		dt := float64(pts[i].T - pts[i-1].T)
		acc += dt * (pts[i-1].Value + pts[i].Value) / 2 // trapezoid of linear P
		out[i] = Point{T: pts[i].T, Value: acc}
	}
	return Function{points: out}
}

// Contribution computes P(L)*(U-L) - (Q(U)-Q(L)), the PV-producer
// objective term for a consumption interval [L, U] clipped to f's
// domain (spec.md §4.3's objective). q must be the antiderivative of f.
func Contribution(p, q Function, interval id.TimeInterval) float64 {
	domain := p.Domain()
	clipped, ok := interval.Intersect(domain)
	if !ok {
		return 0
	}
	l, u := clipped.Lo, clipped.Hi
	return p.At(l)*float64(u-l) - (q.At(u) - q.At(l))
}
