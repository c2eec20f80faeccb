// Package config holds the tunable constants the rest of the module
// reads at startup: the learning automaton's constants, the actor
// manager's causality margin, the PV-Producer's EWMA smoothing factor,
// and the file-system locations the store and reward packages write to.
//
// Grounded on the teacher's internal/simulator/engine.go: a single
// struct guarded by a mutex with one SetXxx method per tunable,
// generalised from simulation-specific tunables (export coefficient,
// price threshold, insulation level) to this module's scheduling
// tunables. CLI flag parsing is out of scope (spec.md's Non-goals);
// Default returns the values spec.md and the original fix as constants.
package config

import (
	"sync"
	"time"

	"cossmic/internal/automaton"
	"cossmic/internal/id"
)

// Config holds the node-wide tunables. Zero value is not meaningful; use
// Default.
type Config struct {
	mu sync.Mutex

	// learningConstant is the automaton step size (original:
	// ConsumerAgent::LearningConstant).
	learningConstant float64

	// gridDiscountFactor exponentiates learningConstant when seeding the
	// grid's initial selection probability (original:
	// ConsumerAgent::GridDiscountFactor).
	gridDiscountFactor int

	// timeOffsetSmoothing is the EWMA factor the PV-Producer applies to
	// its running time_offset estimate (spec.md §4.5).
	timeOffsetSmoothing float64

	// fixedSchedulingDelay is the minimum causal gap the actor manager
	// enforces between "now" and a newly submitted load's latest start
	// time (spec.md §7).
	fixedSchedulingDelay id.Time

	// collectorTimeout bounds how long a PV-Producer waits for each
	// reply from its predictor during a scheduling round (domain query,
	// contribution or energy-equality time) before giving up on it.
	collectorTimeout time.Duration

	// relativePrediction selects whether PREDICTION_UPDATE payloads are
	// interpreted as offsets from the current clock time (true) or as
	// absolute profile timestamps (false); spec.md
	// §9 Open Question, resolved in DESIGN.md.
	relativePrediction bool

	// probabilitiesDirectory is where internal/store persists consumer
	// learning-automaton probabilities between runs.
	probabilitiesDirectory string

	// rewardLogPath is the append-only CSV the reward calculator writes
	// each computed reward to (spec.md §4.7).
	rewardLogPath string
}

// Default returns the configuration spec.md and the original
// implementation use: LearningConstant = 0.99, GridDiscountFactor = 10,
// time_offset EWMA a = 0.10956263608822413, a five-second fixed
// scheduling delay, and a ten-second collector timeout.
func Default() *Config {
	return &Config{
		learningConstant:       automaton.LearningConstant,
		gridDiscountFactor:     automaton.GridDiscountFactor,
		timeOffsetSmoothing:    0.10956263608822413,
		fixedSchedulingDelay:   5,
		collectorTimeout:       10 * time.Second,
		relativePrediction:     false,
		probabilitiesDirectory: "Probabilities",
		rewardLogPath:          "Reward.csv",
	}
}

func (c *Config) LearningConstant() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.learningConstant
}

// SetLearningConstant overrides the automaton's step size.
func (c *Config) SetLearningConstant(v float64) {
	c.mu.Lock()
	c.learningConstant = v
	c.mu.Unlock()
}

func (c *Config) GridDiscountFactor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gridDiscountFactor
}

// SetGridDiscountFactor overrides the grid's initial-probability discount
// exponent.
func (c *Config) SetGridDiscountFactor(v int) {
	c.mu.Lock()
	c.gridDiscountFactor = v
	c.mu.Unlock()
}

func (c *Config) TimeOffsetSmoothing() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeOffsetSmoothing
}

// SetTimeOffsetSmoothing overrides the PV-Producer's EWMA factor.
func (c *Config) SetTimeOffsetSmoothing(v float64) {
	c.mu.Lock()
	c.timeOffsetSmoothing = v
	c.mu.Unlock()
}

func (c *Config) FixedSchedulingDelay() id.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixedSchedulingDelay
}

// SetFixedSchedulingDelay overrides the actor manager's causality
// margin.
func (c *Config) SetFixedSchedulingDelay(v id.Time) {
	c.mu.Lock()
	c.fixedSchedulingDelay = v
	c.mu.Unlock()
}

func (c *Config) CollectorTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collectorTimeout
}

// SetCollectorTimeout overrides how long a PV-Producer waits for each
// predictor reply before proceeding.
func (c *Config) SetCollectorTimeout(v time.Duration) {
	c.mu.Lock()
	c.collectorTimeout = v
	c.mu.Unlock()
}

func (c *Config) RelativePrediction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relativePrediction
}

// SetRelativePrediction selects absolute vs relative PREDICTION_UPDATE
// interpretation.
func (c *Config) SetRelativePrediction(v bool) {
	c.mu.Lock()
	c.relativePrediction = v
	c.mu.Unlock()
}

func (c *Config) ProbabilitiesDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probabilitiesDirectory
}

// SetProbabilitiesDirectory overrides where consumer probabilities
// persist.
func (c *Config) SetProbabilitiesDirectory(v string) {
	c.mu.Lock()
	c.probabilitiesDirectory = v
	c.mu.Unlock()
}

func (c *Config) RewardLogPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rewardLogPath
}

// SetRewardLogPath overrides the reward calculator's append-only log
// path.
func (c *Config) SetRewardLogPath(v string) {
	c.mu.Lock()
	c.rewardLogPath = v
	c.mu.Unlock()
}
