// Package solve implements the two numerical primitives the PV-producer
// scheduler needs: root bracketing for the predictor's
// FindEnergyEqualityTime, and a bounded minimiser for the multi-consumer
// scheduling objective. No corpus example or original_source dependency
// (GSL, in the C++ original) has an idiomatic Go equivalent in the
// retrieved pack, so both are dependency-free stdlib implementations
// (see DESIGN.md).
package solve

import "math"

// RootTolerance is the bracketing tolerance spec.md §4.4 specifies.
const RootTolerance = 0.001

// MaxRootIterations is the iteration cap spec.md §4.4 specifies.
const MaxRootIterations = 1000

// FindRoot brackets a root of f over [lo, hi] using bisection, assuming
// f is non-decreasing (true for P(t) - constant, the equation the
// predictor solves). It returns the smallest x in [lo, hi] with
// f(x) >= 0, rounded up to tolerance, or ok=false if f(hi) < 0 (the
// problem is infeasible: spec.md §4.4 "no solution could be found").
func FindRoot(f func(float64) float64, lo, hi float64) (x float64, ok bool) {
	if f(hi) < 0 {
		return 0, false
	}
	if f(lo) >= 0 {
		return lo, true
	}
	for i := 0; i < MaxRootIterations && hi-lo > RootTolerance; i++ {
		mid := lo + (hi-lo)/2
		if f(mid) >= 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return math.Ceil(hi/RootTolerance) * RootTolerance, true
}

// Bounds is a box constraint for one dimension of the minimiser.
type Bounds struct {
	Lo, Hi float64
}

func (b Bounds) clamp(x float64) float64 {
	if x < b.Lo {
		return b.Lo
	}
	if x > b.Hi {
		return b.Hi
	}
	return x
}

// MinimizeConfig controls the bounded coordinate-descent minimiser.
type MinimizeConfig struct {
	// Tolerance on successive objective improvement before declaring
	// convergence.
	Tolerance float64
	// MaxEvaluations caps the number of objective evaluations; whatever
	// vector is best-seen when the cap is hit is returned as if the
	// solver had converged (spec.md §4.3: "Solver failures ... are all
	// treated identically to success").
	MaxEvaluations int
}

// DefaultMinimizeConfig mirrors typical GSL simplex-minimiser defaults:
// loose enough to terminate quickly, tight enough to be useful for a
// scheduling decision re-run on every Schedule message.
func DefaultMinimizeConfig() MinimizeConfig {
	return MinimizeConfig{Tolerance: 1e-3, MaxEvaluations: 2000}
}

// Minimize performs a bounded coordinate-descent search for a local
// minimum of objective over the box defined by bounds, starting from
// initial. It always returns a result — spec.md §4.3 requires every
// scheduling round to produce start times, never an error — so
// "solver failure" collapses to "return the best vector seen".
func Minimize(objective func([]float64) float64, bounds []Bounds, initial []float64, cfg MinimizeConfig) []float64 {
	n := len(bounds)
	best := make([]float64, n)
	for i := range best {
		best[i] = bounds[i].clamp(initial[i])
	}
	bestVal := objective(best)
	evals := 1

	// Initial step size per dimension: a quarter of the box width, or a
	// nominal 1.0 if the box is degenerate.
	step := make([]float64, n)
	for i, b := range bounds {
		w := b.Hi - b.Lo
		if w <= 0 {
			step[i] = 1
		} else {
			step[i] = w / 4
		}
	}

	for pass := 0; evals < cfg.MaxEvaluations; pass++ {
		improved := false
		for i := 0; i < n && evals < cfg.MaxEvaluations; i++ {
			for _, dir := range [2]float64{1, -1} {
				cand := append([]float64(nil), best...)
				cand[i] = bounds[i].clamp(cand[i] + dir*step[i])
				val := objective(cand)
				evals++
				if bestVal-val > cfg.Tolerance {
					best = cand
					bestVal = val
					improved = true
				}
			}
		}
		if !improved {
			allTiny := true
			for i := range step {
				step[i] /= 2
				if step[i] > cfg.Tolerance {
					allTiny = false
				}
			}
			if allTiny {
				break
			}
		}
		if pass > 10000 {
			break // evaluation-count-independent backstop against pathological objectives
		}
	}
	return best
}
