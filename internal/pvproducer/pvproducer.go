// Package pvproducer implements the PV-Producer (spec.md §4.3): a
// Producer specialised with a non-linear scheduling step that runs on
// every Schedule, real or trigger. It is the hardest subsystem in the
// design — it partitions its assigned loads into started/active/future,
// builds consumption intervals, and either runs a bounded minimiser
// (multiple active consumers) or a single root-find (exactly one) to
// produce new assigned start times.
//
// Grounded on original_source/simulator/CoSSMic/PVProducer.hpp/.cpp
// (ConsumptionInterval construction, the GSL multimin objective, the
// single-consumer FindTimeRoot shortcut, time_offset's EWMA update),
// reusing internal/producer.Producer for the generic proxy bookkeeping
// and internal/solve for the numerics no pack example supplies natively.
package pvproducer

import (
	"fmt"
	"time"

	"cossmic/internal/actor"
	"cossmic/internal/clock"
	"cossmic/internal/config"
	"cossmic/internal/id"
	"cossmic/internal/predictor"
	"cossmic/internal/producer"
	"cossmic/internal/proxy"
	"cossmic/internal/solve"
	"cossmic/internal/transport"
	"cossmic/internal/wire"
)

// PVProducer wraps a generic Producer with the non-linear reschedule
// step. All fields are touched only from within the Producer's own
// actor goroutine (the OnSchedule hook runs there), so no locking is
// needed beyond what Producer already provides.
type PVProducer struct {
	prod      *producer.Producer
	system    *actor.System
	clk       clock.Clock
	predictor string // predictor actor address, always node-local

	// timeOffsetSmoothing is the EWMA factor a (spec.md §4.3, default
	// 0.10956263608822413 chosen so the discount weight after ~101
	// samples is 10⁻⁶) and collectorTimeout bounds how long a single
	// objective evaluation may wait on the predictor's reply (spec.md
	// §5's 10-second default guard on the fan-out/fan-in collector).
	// Both come from config.Config rather than package constants, so a
	// node can retune them without a rebuild.
	timeOffsetSmoothing float64
	collectorTimeout    time.Duration

	earliestStartingConsumer string
	hasEarliest              bool
	timeOffset               float64
}

// Spawn constructs a PV-Producer at address, with predictorAddress
// already registered in system (actormanager spawns the Predictor and
// passes its address in).
func Spawn(system *actor.System, address, predictorAddress string, tr transport.Transport, clk clock.Clock, cfg *config.Config) (*PVProducer, actor.Ref) {
	pv := &PVProducer{
		system:              system,
		clk:                 clk,
		predictor:           predictorAddress,
		timeOffset:          0,
		timeOffsetSmoothing: cfg.TimeOffsetSmoothing(),
		collectorTimeout:    cfg.CollectorTimeout(),
	}
	prod, ref := producer.Spawn(system, address, tr, pv.onSchedule)
	pv.prod = prod
	prod.SetOnKillProxy(func(_ *producer.Producer, consumer string) { pv.KillProxy(consumer) })
	return pv, ref
}

// Address returns the PV-Producer's actor address.
func (pv *PVProducer) Address() string { return pv.prod.Address() }

// loadEntry pairs a proxy handle with the start time it contributes to
// a consumption interval: fixed for started loads, a solver candidate
// for active ones.
type loadEntry struct {
	handle proxy.Handle
	state  *producer.ConsumerProxyState
	start  id.Time
}

func (pv *PVProducer) onSchedule(p *producer.Producer, consumer string, cmd wire.Schedule, trigger bool) {
	pv.reschedule()
}

// reschedule implements spec.md §4.3's full scheduling step: partition,
// build consumption intervals, solve (or take the single-consumer
// shortcut), broadcast, then update earliest_starting_consumer and
// time_offset.
func (pv *PVProducer) reschedule() {
	now := pv.clk.Now()
	domain, ok := pv.queryDomain()
	if !ok {
		return // nothing to schedule against yet; the next prediction update retriggers us
	}

	started, active, future := pv.partition(now, domain)
	_ = future // future loads are left untouched this round by construction

	if len(active) == 0 {
		return
	}

	var newStarts map[proxy.Handle]id.Time
	if len(active) == 1 {
		newStarts = pv.singleConsumerHeuristic(now, active[0])
	} else {
		newStarts = pv.minimise(now, domain, started, active)
	}

	for _, entry := range active {
		t, ok := newStarts[entry.handle]
		if !ok {
			// no feasible start time this round (infeasible mapping, a
			// predictor miss, or a collector timeout): the original
			// sends the empty result unconditionally (PVProducer.cpp:781)
			// so the consumer kills its proxy and falls back to the next
			// producer (PVProducer.cpp:718-720) instead of waiting forever.
			pv.prod.Transport().Send(pv.Address(), entry.state.Consumer, wire.AssignedStartTime{}.Encode())
			continue
		}
		if entry.state.SetAssignedStartTime(t) {
			pv.prod.Transport().Send(pv.Address(), entry.state.Consumer, wire.AssignedStartTime{Time: t, Set: true}.Encode())
		}
	}

	pv.updateEarliestStartingConsumer(started, active)
}

func (pv *PVProducer) queryDomain() (id.TimeInterval, bool) {
	ref, ok := pv.system.Lookup(pv.predictor)
	if !ok {
		return id.TimeInterval{}, false
	}
	reply := make(chan predictor.DomainResult, 1)
	ref.Send(pv.Address(), predictor.QueryDomain{ReplyTo: reply})
	select {
	case result := <-reply:
		return result.Domain, result.Ok
	case <-time.After(pv.collectorTimeout):
		return id.TimeInterval{}, false
	}
}

// partition classifies every assigned proxy as started, active, or
// future per spec.md §4.3. A proxy matching none of the three is a
// programming-error precondition violation.
func (pv *PVProducer) partition(now id.Time, domain id.TimeInterval) (started, active, future []loadEntry) {
	schedulingLo := now
	if domain.Lo > schedulingLo {
		schedulingLo = domain.Lo
	}
	schedulingWindow := id.TimeInterval{Lo: schedulingLo, Hi: domain.Hi}

	for _, h := range pv.prod.Arena().Handles() {
		st, _ := pv.prod.Arena().Get(h)
		switch {
		case st.HasStartTime && st.AssignedStartTime <= now+id.Time(pv.timeOffset):
			started = append(started, loadEntry{handle: h, state: st, start: st.AssignedStartTime})
		case st.Allowed.Overlaps(schedulingWindow):
			start := schedulingLo
			if st.HasStartTime {
				start = st.AssignedStartTime
			}
			active = append(active, loadEntry{handle: h, state: st, start: start})
		case st.Allowed.Lo > schedulingWindow.Hi:
			future = append(future, loadEntry{handle: h, state: st, start: st.Allowed.Lo})
		default:
			panic(fmt.Sprintf("pvproducer %s: proxy for %s fits no scheduling bucket", pv.Address(), st.Consumer))
		}
	}
	return started, active, future
}

// buildIntervals folds started loads (in arena order) then active loads
// (in insertion order) into maximal overlapping consumption intervals,
// per spec.md §4.3's order-sensitive construction.
func buildIntervals(started, active []loadEntry) []consumptionInterval {
	var intervals []consumptionInterval
	fold := func(e loadEntry) {
		span := id.TimeInterval{Lo: e.start, Hi: e.start + e.state.Duration}
		for i := range intervals {
			if intervals[i].span.Overlaps(span) {
				intervals[i].span = intervals[i].span.Hull(span)
				intervals[i].members = append(intervals[i].members, e)
				return
			}
		}
		intervals = append(intervals, consumptionInterval{span: span, members: []loadEntry{e}})
	}
	for _, e := range started {
		fold(e)
	}
	for _, e := range active {
		fold(e)
	}
	return intervals
}

type consumptionInterval struct {
	span    id.TimeInterval
	members []loadEntry
}

// objective computes spec.md §4.3's total scheduling cost for a
// candidate start-time vector over active (one entry per active load,
// same order as active). Lower is better. Evaluated synchronously on
// the caller's own stack, the approved suspension point for a solver
// invocation (spec.md §5); each evaluation issues exactly one
// ComputeContribution round trip to the predictor per consumption
// interval it produces.
func (pv *PVProducer) objective(started, active []loadEntry, candidate []float64) float64 {
	withCandidates := make([]loadEntry, len(active))
	for i, e := range active {
		e.start = id.Time(candidate[i])
		withCandidates[i] = e
	}

	var total float64
	for _, interval := range buildIntervals(started, withCandidates) {
		total += pv.predictorContribution(interval.span)
		for _, m := range interval.members {
			total += m.state.Contribution(m.start, interval.span)
		}
	}
	return total
}

func (pv *PVProducer) predictorContribution(span id.TimeInterval) float64 {
	ref, ok := pv.system.Lookup(pv.predictor)
	if !ok {
		return 0
	}
	reply := make(chan float64, 1)
	ref.Send(pv.Address(), predictor.ComputeContribution{Interval: span, ReplyTo: reply})
	select {
	case v := <-reply:
		return v
	case <-time.After(pv.collectorTimeout):
		return 0
	}
}

// minimise runs the bounded coordinate-descent solver over one dimension
// per active load, box-constrained to [max(est, now), min(lst,
// domain.hi)], initial guess the currently assigned start time if any
// else the box's lower bound.
func (pv *PVProducer) minimise(now id.Time, domain id.TimeInterval, started, active []loadEntry) map[proxy.Handle]id.Time {
	bounds := make([]solve.Bounds, len(active))
	initial := make([]float64, len(active))
	for i, e := range active {
		lo := e.state.Allowed.Lo
		if now > lo {
			lo = now
		}
		hi := e.state.Allowed.Hi
		if domain.Hi < hi {
			hi = domain.Hi
		}
		bounds[i] = solve.Bounds{Lo: float64(lo), Hi: float64(hi)}
		if e.state.HasStartTime {
			initial[i] = float64(e.state.AssignedStartTime)
		} else {
			initial[i] = float64(lo)
		}
	}

	best := solve.Minimize(func(x []float64) float64 {
		return pv.objective(started, active, x)
	}, bounds, initial, solve.DefaultMinimizeConfig())

	out := make(map[proxy.Handle]id.Time, len(active))
	for i, e := range active {
		out[e.handle] = id.Time(best[i])
	}
	return out
}

// singleConsumerHeuristic implements spec.md §4.3's shortcut: ask the
// predictor for the earliest T >= now with P(T) >= total_load_energy +
// P(now), then map T back onto a start time within [est, lst], or leave
// the load unassigned if no mapping is feasible.
func (pv *PVProducer) singleConsumerHeuristic(now id.Time, e loadEntry) map[proxy.Handle]id.Time {
	ref, ok := pv.system.Lookup(pv.predictor)
	if !ok {
		return nil
	}
	reply := make(chan predictor.EnergyEqualityResult, 1)
	ref.Send(pv.Address(), predictor.FindEnergyEqualityTime{TotalEnergy: e.state.Energy, ReplyTo: reply})
	var result predictor.EnergyEqualityResult
	select {
	case result = <-reply:
	case <-time.After(pv.collectorTimeout):
		return nil
	}
	if !result.Ok {
		return nil
	}
	t := result.Time

	var start id.Time
	switch {
	case t <= e.state.Allowed.Lo+e.state.Duration:
		start = e.state.Allowed.Lo
	case e.state.Allowed.Contains(t - e.state.Duration):
		start = t - e.state.Duration
	default:
		return nil
	}
	return map[proxy.Handle]id.Time{e.handle: start}
}

// updateEarliestStartingConsumer recomputes earliest_starting_consumer
// as the active consumer with the least assigned start time, but only
// when there are no started loads (spec.md §4.3 step 2); it also rolls
// the time_offset EWMA forward using the wall-clock latency between now
// and the (possibly new) earliest start.
func (pv *PVProducer) updateEarliestStartingConsumer(started, active []loadEntry) {
	if len(started) > 0 {
		return
	}
	var earliest *loadEntry
	for i := range active {
		if !active[i].state.HasStartTime {
			continue
		}
		if earliest == nil || active[i].state.AssignedStartTime < earliest.state.AssignedStartTime {
			earliest = &active[i]
		}
	}
	if earliest == nil {
		pv.hasEarliest = false
		return
	}
	pv.earliestStartingConsumer = earliest.state.Consumer
	pv.hasEarliest = true

	now := pv.clk.Now()
	sample := float64(earliest.state.AssignedStartTime - now)
	pv.timeOffset = pv.timeOffsetSmoothing*sample + (1-pv.timeOffsetSmoothing)*pv.timeOffset
}

// KillProxy extends the generic handler (spec.md §4.3's KillProxy
// extension): if the removed proxy was earliest_starting_consumer, the
// reference is invalidated and, if a new minimum among the remaining
// consumers corresponds to a past start time, the predictor's
// prediction_origin is updated so the next prediction update's history
// padding uses that time.
func (pv *PVProducer) KillProxy(consumer string) {
	wasEarliest := pv.hasEarliest && pv.earliestStartingConsumer == consumer
	if !wasEarliest {
		return
	}
	pv.hasEarliest = false

	var minState *producer.ConsumerProxyState
	for _, h := range pv.prod.Arena().Handles() {
		st, _ := pv.prod.Arena().Get(h)
		if st.Consumer == consumer || !st.HasStartTime {
			continue
		}
		if minState == nil || st.AssignedStartTime < minState.AssignedStartTime {
			minState = st
		}
	}
	if minState == nil {
		return
	}
	pv.earliestStartingConsumer = minState.Consumer
	pv.hasEarliest = true

	if now := pv.clk.Now(); minState.AssignedStartTime < now {
		if ref, ok := pv.system.Lookup(pv.predictor); ok {
			ref.Send(pv.Address(), predictor.SetPredictionOrigin{Time: minState.AssignedStartTime})
		}
	}
}

// UpdatePrediction forwards a NewPrediction(file) notification to the
// predictor without waiting for it to complete; actor-mailbox ordering
// guarantees any Schedule this PV-producer later needs to answer, which
// itself depends on the predictor, queues behind the update (spec.md
// §4.3's prediction-update note).
func (pv *PVProducer) UpdatePrediction(file string) {
	if ref, ok := pv.system.Lookup(pv.predictor); ok {
		ref.Send(pv.Address(), predictor.UpdatePredictionFromFile{File: file})
	}
}
