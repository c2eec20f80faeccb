// Package automaton implements the variable-structure stochastic automaton
// used by a consumer to pick among its known producers: a linear
// reward-inaction learning scheme over a probability mass, one entry per
// producer, updated every time a reward arrives for the configuration the
// consumer's last selection took part in.
//
// Grounded on original_source/simulator/CoSSMic/ConsumerAgent.cpp/.hpp
// (LearningConstant = 0.99, GridDiscountFactor = 10, the priority-subset
// selection and demotion sequence in SelectProducer). Sampling uses the
// stdlib math/rand, the same package the corpus reaches for in
// other_examples/e47868ac_niceyeti-tabular__reinforcement-learning.go.go;
// no pack example imports a dedicated stochastic-automaton or bandit
// library, so the update rule itself is hand-rolled from the original.
package automaton

import (
	"errors"
	"math/rand"
	"sync"
)

// LearningConstant is the automaton's step size, taken verbatim from the
// original ConsumerAgent (CoSSMic/ConsumerAgent.hpp: LearningConstant = 0.99).
const LearningConstant = 0.99

// GridDiscountFactor is the exponent applied to LearningConstant when
// seeding the grid's initial probability, so that the grid is not tried
// until roughly this many plays among the other producers have occurred.
const GridDiscountFactor = 10

// ErrPrioritySubsetExhausted is returned by SelectAction when every index
// named in the priority subset currently has zero probability mass, the
// condition the original reports by throwing std::underflow_error.
// Callers are expected to react by demoting to the next priority subset.
var ErrPrioritySubsetExhausted = errors.New("automaton: priority subset exhausted")

// Automaton holds a probability mass over a fixed number of actions
// (producers) and updates it with a linear reward-inaction rule.
type Automaton struct {
	mu    sync.Mutex
	p     []float64
	learn float64
	rng   *rand.Rand
}

// New builds an automaton over len(initial) actions. initial need not sum
// to one; it is normalised on construction, mirroring the original's use
// of ProbabilityMass to renormalise whatever values CreateAutomaton seeded.
func New(initial []float64, learningConstant float64) *Automaton {
	p := make([]float64, len(initial))
	copy(p, initial)
	normalise(p)
	return &Automaton{
		p:     p,
		learn: learningConstant,
		rng:   rand.New(rand.NewSource(1)),
	}
}

// NewUniform builds an automaton over n actions with equal probability,
// the fallback the original applies to any producer without a stored
// historical probability.
func NewUniform(n int) *Automaton {
	p := make([]float64, n)
	for i := range p {
		p[i] = 1.0 / float64(n)
	}
	return New(p, LearningConstant)
}

// GridProbability computes the discounted initial probability CreateAutomaton
// assigns to the grid action among n total producers.
func GridProbability(n int) float64 {
	return pow(LearningConstant, GridDiscountFactor) / float64(n)
}

func pow(base float64, exp int) float64 {
	r := 1.0
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}

func normalise(p []float64) {
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	if sum <= 0 {
		for i := range p {
			p[i] = 1.0 / float64(len(p))
		}
		return
	}
	for i := range p {
		p[i] /= sum
	}
}

// Probabilities returns a snapshot of the current probability mass, one
// entry per action, safe for the caller to persist (internal/store).
func (a *Automaton) Probabilities() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.p))
	copy(out, a.p)
	return out
}

// SelectAction draws one action index from the probability mass restricted
// to priority, the subset of action indices currently eligible (PV
// producers, then batteries, then the grid, per the original's demotion
// sequence). priority must be non-empty. If the summed probability of the
// subset is zero, ErrPrioritySubsetExhausted is returned and the caller
// should retry with the next priority subset.
func (a *Automaton) SelectAction(priority []int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	mass := 0.0
	for _, idx := range priority {
		mass += a.p[idx]
	}
	if mass <= 0 {
		return 0, ErrPrioritySubsetExhausted
	}

	draw := a.rng.Float64() * mass
	acc := 0.0
	for _, idx := range priority {
		acc += a.p[idx]
		if draw <= acc {
			return idx, nil
		}
	}
	return priority[len(priority)-1], nil
}

// Feedback applies the linear reward-inaction update for the action last
// selected: the rewarded action's probability moves toward one and every
// other action's probability decays toward zero, both scaled by reward in
// [0,1] and the learning constant. A reward of zero leaves the mass
// unchanged (the "inaction" half of the scheme).
func (a *Automaton) Feedback(action int, reward float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	step := a.learn * reward
	for i := range a.p {
		if i == action {
			a.p[i] += step * (1 - a.p[i])
		} else {
			a.p[i] -= step * a.p[i]
		}
	}
}
