// Package predictor implements the Predictor actor: it holds a PV
// producer's cumulative-energy prediction P(t) and its antiderivative
// Q(t) as interpolated functions, answers integral and root-finding
// queries against them, and rebuilds both whenever a new prediction
// profile arrives.
//
// Grounded on original_source/simulator/CoSSMic/Predictor.hpp/.cpp
// (ComputeObjectiveValue, FindTimeRoot, SetPredictionOrigin,
// UpdatePrediction's rebase/pad/mirror algorithm); built as an
// internal/actor actor so the "P and Q swap atomically in one handler"
// concurrency invariant (spec.md §4.4) falls directly out of the actor
// system's single-consumer-per-mailbox guarantee, with no extra locking.
package predictor

import (
	"fmt"
	"os"

	"cossmic/internal/actor"
	"cossmic/internal/clock"
	"cossmic/internal/id"
	"cossmic/internal/ingest"
	"cossmic/internal/interpolate"
	"cossmic/internal/solve"
	"cossmic/internal/wire"
)

// ComputeContribution asks the predictor for its objective contribution
// over [interval.Lo, interval.Hi], clipped to the prediction's domain.
type ComputeContribution struct {
	Interval id.TimeInterval
	ReplyTo  chan float64
}

// FindEnergyEqualityTime asks the predictor for the earliest time at or
// after now such that P(t) >= totalEnergy + P(now).
type FindEnergyEqualityTime struct {
	TotalEnergy float64
	ReplyTo     chan EnergyEqualityResult
}

// EnergyEqualityResult is the answer to FindEnergyEqualityTime: Ok is
// false when the request is infeasible over the current domain.
type EnergyEqualityResult struct {
	Time id.Time
	Ok   bool
}

// SetPredictionOrigin records the earliest not-yet-started assigned
// load's time, applied the next time UpdatePrediction runs.
type SetPredictionOrigin struct {
	Time id.Time
}

// QueryDomain asks for the current prediction's domain, needed by the
// PV-producer to partition consumer proxies into started/active/future.
type QueryDomain struct {
	ReplyTo chan DomainResult
}

// DomainResult answers QueryDomain; Ok is false before any prediction has
// been installed.
type DomainResult struct {
	Domain id.TimeInterval
	Ok     bool
}

// UpdatePredictionFromFile loads a new prediction profile from a file
// path and installs it, then triggers a zero-energy Schedule back to the
// owning producer.
type UpdatePredictionFromFile struct {
	File string
}

// Predictor holds the two interpolated functions and replies to queries
// against them. All fields are touched only from within the actor's
// single dispatch goroutine; no separate locking is required.
type Predictor struct {
	system   *actor.System
	address  string
	producer string
	clock    clock.Clock

	relativePrediction bool

	p      *interpolate.Function
	q      *interpolate.Function
	origin id.Time
}

// Spawn creates and registers a Predictor actor at address, forwarding
// its trigger Schedule messages to producerAddress.
func Spawn(system *actor.System, address, producerAddress string, clk clock.Clock, relativePrediction bool) actor.Ref {
	p := &Predictor{
		system:              system,
		address:             address,
		producer:            producerAddress,
		clock:               clk,
		relativePrediction:  relativePrediction,
		origin:              id.Time(1<<63 - 1), // max: no history to preserve before any update
	}
	return system.Spawn(address, p.handle)
}

func (p *Predictor) handle(msg actor.Message) {
	switch body := msg.Payload.(type) {
	case ComputeContribution:
		p.computeContribution(body)
	case FindEnergyEqualityTime:
		p.findEnergyEqualityTime(body)
	case SetPredictionOrigin:
		p.origin = body.Time
	case QueryDomain:
		p.queryDomain(body)
	case UpdatePredictionFromFile:
		p.updatePredictionFromFile(body.File)
	default:
		panic(fmt.Sprintf("predictor %s: unexpected message type %T", p.address, msg.Payload))
	}
}

func (p *Predictor) computeContribution(req ComputeContribution) {
	var value float64
	if p.p != nil && p.q != nil {
		value = interpolate.Contribution(*p.p, *p.q, req.Interval)
	}
	if req.ReplyTo != nil {
		req.ReplyTo <- value
	}
}

func (p *Predictor) queryDomain(req QueryDomain) {
	var result DomainResult
	if p.p != nil {
		result = DomainResult{Domain: p.p.Domain(), Ok: true}
	}
	if req.ReplyTo != nil {
		req.ReplyTo <- result
	}
}

func (p *Predictor) findEnergyEqualityTime(req FindEnergyEqualityTime) {
	result := EnergyEqualityResult{}
	if p.p != nil {
		now := p.clock.Now()
		target := req.TotalEnergy + p.p.At(now)
		lo := now
		if dom := p.p.Domain(); lo < dom.Lo {
			lo = dom.Lo
		}
		hi := p.p.Domain().Hi

		t, ok := solve.FindRoot(func(t float64) float64 {
			return p.p.At(id.Time(t)) - target
		}, float64(lo), float64(hi))
		if ok {
			result = EnergyEqualityResult{Time: id.Time(t), Ok: true}
		}
	}
	if req.ReplyTo != nil {
		req.ReplyTo <- result
	}
}

// updatePredictionFromFile implements spec.md §4.4's update algorithm:
// rebase, optionally shift relative time to absolute, make continuous
// with the previous prediction, pad/mirror history if needed, then
// install the new P and Q and retrigger scheduling.
func (p *Predictor) updatePredictionFromFile(file string) {
	f, err := os.Open(file)
	if err != nil {
		panic(fmt.Sprintf("predictor %s: cannot open prediction file %s: %v", p.address, file, err))
	}
	defer f.Close()

	samples, err := ingest.ParseProfile(f)
	if err != nil {
		panic(fmt.Sprintf("predictor %s: cannot parse prediction file %s: %v", p.address, file, err))
	}
	p.installPrediction(samples)
}

// installPrediction runs the rebase/continuity/padding algorithm over
// samples and swaps in the resulting P and Q, kept separate from
// updatePredictionFromFile so tests can drive it without touching the
// filesystem.
func (p *Predictor) installPrediction(samples []ingest.Sample) {
	if len(samples) == 0 {
		return
	}

	// Rebase so the series starts at zero energy.
	if samples[0].Energy != 0 {
		first := samples[0].Energy
		for i := range samples {
			samples[i].Energy -= first
		}
	}

	// Optionally shift relative time stamps (series starting at "now") to
	// absolute POSIX time.
	if p.relativePrediction {
		now := p.clock.Now()
		for i := range samples {
			samples[i].Time += now
		}
	}

	// Make the new series continuous with the previous prediction by
	// adding the previous prediction's value at the series' origin.
	seriesStart := samples[0].Time
	if p.p != nil {
		var originEnergy float64
		if dom := p.p.Domain(); dom.Hi <= seriesStart {
			originEnergy = p.p.At(dom.Hi)
		} else {
			originEnergy = p.p.At(seriesStart)
		}
		for i := range samples {
			samples[i].Energy += originEnergy
		}
	}

	merged := make(map[id.Time]float64, len(samples))
	for _, s := range samples {
		merged[s.Time] = s.Energy
	}

	// Pad/mirror history if the caller's prediction origin predates the
	// new series: for each later sample at T+t_i, synthesize a sample at
	// T-t_i = 2T - (T+t_i) using the previous prediction, until the
	// origin is covered.
	if p.p != nil && p.origin < seriesStart {
		basis := 2 * seriesStart
		lowerBound := p.p.Domain().Lo
		sampleTime := seriesStart

		for i := 1; p.origin < sampleTime && i < len(samples); i++ {
			sampleTime = basis - samples[i].Time
			if sampleTime < lowerBound {
				sampleTime = lowerBound
			}
			if _, exists := merged[sampleTime]; !exists {
				merged[sampleTime] = p.p.At(sampleTime)
			}
		}
	}

	points := make([]interpolate.Point, 0, len(merged))
	for t, e := range merged {
		points = append(points, interpolate.Point{T: t, Value: e})
	}

	newP, err := interpolate.New(points)
	if err != nil {
		panic(fmt.Sprintf("predictor %s: building prediction: %v", p.address, err))
	}
	newQ := newP.Integrate()

	p.p = &newP
	p.q = &newQ

	if ref, ok := p.system.Lookup(p.producer); ok {
		dom := newP.Domain()
		ref.Send(p.address, wire.Schedule{EST: dom.Lo, LST: dom.Hi, Duration: 0, Energy: 0})
	}
}

