// Package consumer implements the Consumer-Agent (spec.md §4.5): the
// per-load actor that picks a producer via a learning automaton, carries
// the scheduling dialogue (Schedule / AssignedStartTime / KillProxy) to
// a confirmed start time, and reports the outcome to the task manager.
//
// Grounded on original_source/simulator/CoSSMic/ConsumerAgent.hpp/.cpp
// (the priority-subset demotion sequence, the five-step scheduling
// dialogue, the ShutDownHandler's RegisterHandler/DeregisterHandler
// swap), reusing internal/automaton for the learning rule and
// internal/store for cross-run persistence.
package consumer

import (
	"fmt"

	"cossmic/internal/actor"
	"cossmic/internal/automaton"
	"cossmic/internal/id"
	"cossmic/internal/store"
	"cossmic/internal/transport"
	"cossmic/internal/wire"
)

// State is the Consumer-Agent's scheduling state machine (spec.md §4.5).
type State int

const (
	StateIdle State = iota
	StateScheduling
	StateInvalidScheduling
	StateStartTime
	StateAwaitingAcknowledgement
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateScheduling:
		return "Scheduling"
	case StateInvalidScheduling:
		return "InvalidScheduling"
	case StateStartTime:
		return "StartTime"
	case StateAwaitingAcknowledgement:
		return "AwaitingAcknowledgement"
	default:
		return "Unknown"
	}
}

// TaskManager is the notification surface the (external, out of scope)
// task manager must implement so a Consumer-Agent can report outcomes.
type TaskManager interface {
	StartTime(loadID id.ID, t id.Time, sequence uint64, producerAddress string)
	CancelStartTime(loadID id.ID)
}

// LoadRequest is the CreateLoad request this consumer was spawned to
// service.
type LoadRequest struct {
	ID       id.ID
	EST, LST id.Time
	Duration id.Time
	Energy   float64
	Sequence uint64
}

// PeerAdded notifies the consumer that a new producer address has
// joined the node's directory.
type PeerAdded struct{ Address string }

// PeerRemoved notifies the consumer that a known producer address has
// left the node's directory.
type PeerRemoved struct{ Address string }

// Reward carries a reward calculator's per-load reward in [0, 1].
type Reward struct{ Value float64 }

// QuerySelectedProducer asks for this consumer's current best-effort
// producer selection. ReplyTo receives the selected producer's address,
// or "" if none has been confirmed yet. Used by the actor-manager's
// ShutDown sequence (spec.md §4.1's "best-effort lookup of each
// consumer's currently selected producer").
type QuerySelectedProducer struct {
	ReplyTo chan string
}

// Consumer is the Consumer-Agent actor. All fields are touched only
// from within its own dispatch goroutine.
type Consumer struct {
	system    *actor.System
	transport transport.Transport
	address   string
	ref       actor.Ref

	taskManager TaskManager
	persist     *store.Store

	load LoadRequest

	producers []string
	automaton *automaton.Automaton

	// rejected holds every producer address this load has already been
	// turned down by, keyed by address so index shifts from
	// handlePeerRemoved don't invalidate it. priorityLevels excludes
	// them, guaranteeing a rejection always moves the next draw toward
	// the next priority subset (and, eventually, the grid) instead of
	// redrawing the same producer forever.
	rejected map[string]struct{}

	state               State
	selectedProducer    string
	hasSelectedProducer bool
	lastAction          int
	hasLastAction       bool

	draining     bool
	actorManager string
}

// Spawn constructs a Consumer-Agent at address for load, bootstraps its
// producer list from every currently registered producer/PV-producer/
// grid address in system (the initial peer-discovery snapshot), and, if
// any are already known, immediately runs the first scheduling attempt.
func Spawn(system *actor.System, address string, tr transport.Transport, tm TaskManager, persist *store.Store, load LoadRequest) (*Consumer, actor.Ref) {
	c := &Consumer{
		system:      system,
		transport:   tr,
		address:     address,
		taskManager: tm,
		persist:     persist,
		load:        load,
		state:       StateIdle,
		rejected:    make(map[string]struct{}),
	}
	c.ref = system.Spawn(address, c.handle)

	for _, addr := range system.Addresses("") {
		if addr == address {
			continue
		}
		switch id.ClassifyAddress(addr) {
		case id.KindPVProducer, id.KindGrid, id.KindProducer:
			c.producers = append(c.producers, addr)
		}
	}
	if len(c.producers) > 0 {
		c.rebuildAutomaton()
		c.trySelectAndSchedule()
	}
	return c, c.ref
}

// Address returns the consumer's actor address.
func (c *Consumer) Address() string { return c.address }

// State returns the consumer's current scheduling state.
func (c *Consumer) State() State { return c.state }

func (c *Consumer) handle(msg actor.Message) {
	switch body := msg.Payload.(type) {
	case PeerAdded:
		c.handlePeerAdded(body.Address)
	case PeerRemoved:
		c.handlePeerRemoved(body.Address)
	case Reward:
		c.handleReward(body)
	case QuerySelectedProducer:
		c.replySelectedProducer(body)
	case string:
		c.handleWire(msg.Sender, body)
	default:
		panic(fmt.Sprintf("consumer %s: unexpected message type %T", c.address, msg.Payload))
	}
}

func (c *Consumer) replySelectedProducer(q QuerySelectedProducer) {
	if q.ReplyTo == nil {
		return
	}
	if c.hasSelectedProducer {
		q.ReplyTo <- c.selectedProducer
	} else {
		q.ReplyTo <- ""
	}
}

func (c *Consumer) handleWire(sender, raw string) {
	env, err := wire.Split(raw)
	if err != nil {
		return
	}
	switch env.Tag {
	case wire.TagAssignedStartTime:
		ast, err := wire.DecodeAssignedStartTime(env.Body)
		if err != nil {
			return
		}
		c.handleAssignedStartTime(sender, ast)
	case wire.TagAcknowledgeProxyRemoval:
		c.trySelectAndSchedule()
	case wire.TagShutdown:
		c.shutdown(sender)
	default:
		panic(fmt.Sprintf("consumer %s: unexpected wire tag %s", c.address, env.Tag))
	}
}

// priorityLevels returns the PV -> Battery -> Grid demotion sequence of
// producer indices (spec.md §4.5), excluding any producer this load has
// already been rejected by. Battery is always empty: producer creation
// for Battery kinds is reserved and never populated (spec.md §4.1's
// "current implementation accepts only PhotoVoltaic").
func (c *Consumer) priorityLevels() [][]int {
	var pv, battery, grid []int
	for i, addr := range c.producers {
		if _, done := c.rejected[addr]; done {
			continue
		}
		switch id.ClassifyAddress(addr) {
		case id.KindPVProducer:
			pv = append(pv, i)
		case id.KindGrid:
			grid = append(grid, i)
		}
	}
	return [][]int{pv, battery, grid}
}

// trySelectAndSchedule draws a producer from the highest-priority
// non-exhausted subset and sends it a Schedule request, transitioning to
// Scheduling. If every subset is exhausted (or no producers are known at
// all) it leaves the state unchanged; the next peer-discovery or
// AcknowledgeProxyRemoval event will retry.
func (c *Consumer) trySelectAndSchedule() {
	if c.automaton == nil || len(c.producers) == 0 {
		return
	}
	for _, level := range c.priorityLevels() {
		if len(level) == 0 {
			continue
		}
		action, err := c.automaton.SelectAction(level)
		if err == automaton.ErrPrioritySubsetExhausted {
			continue
		}
		target := c.producers[action]
		c.transport.Send(c.address, target, wire.Schedule{
			EST: c.load.EST, LST: c.load.LST, Duration: c.load.Duration, Energy: c.load.Energy,
		}.Encode())
		c.state = StateScheduling
		c.lastAction = action
		c.hasLastAction = true
		return
	}
}

func (c *Consumer) handleAssignedStartTime(sender string, ast wire.AssignedStartTime) {
	switch {
	case c.state == StateInvalidScheduling:
		c.reject(sender)
	case c.state == StateScheduling && ast.Set:
		c.state = StateStartTime
		c.selectedProducer = sender
		c.hasSelectedProducer = true
		if c.taskManager != nil {
			c.taskManager.StartTime(c.load.ID, ast.Time, c.load.Sequence, sender)
		}
	case c.state == StateScheduling && !ast.Set:
		c.reject(sender)
	case c.state == StateStartTime && !ast.Set:
		// the selected producer revoked a previously confirmed start
		// time (e.g. it is draining towards shutdown).
		c.reject(sender)
	default:
		// stray or late reply for a dialogue already moved on; ignore.
	}
}

// reject sends KillProxy to the producer that failed this consumer
// (spec.md §4.5 step 3), telling the task manager CancelStartTime if a
// start time had previously been confirmed. sender is excluded from
// every future priorityLevels draw for this load, so a producer that
// keeps rejecting is demoted past rather than redrawn forever.
func (c *Consumer) reject(sender string) {
	wasStartTime := c.state == StateStartTime
	c.transport.Send(c.address, sender, wire.EncodeBodyless(wire.TagKillProxy))
	if wasStartTime && c.taskManager != nil {
		c.taskManager.CancelStartTime(c.load.ID)
	}
	c.rejected[sender] = struct{}{}
	c.state = StateAwaitingAcknowledgement
}

func (c *Consumer) handleReward(r Reward) {
	if c.state != StateStartTime || !c.hasLastAction {
		return
	}
	c.automaton.Feedback(c.lastAction, r.Value)
}

func (c *Consumer) handlePeerAdded(addr string) {
	for _, existing := range c.producers {
		if existing == addr {
			return
		}
	}
	c.persistProbabilities()
	c.producers = append(c.producers, addr)
	c.rebuildAutomaton()
	if c.state == StateIdle {
		c.trySelectAndSchedule()
	}
}

func (c *Consumer) handlePeerRemoved(addr string) {
	idx := -1
	for i, existing := range c.producers {
		if existing == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	c.producers = append(c.producers[:idx], c.producers[idx+1:]...)
	delete(c.rejected, addr)
	c.rebuildAutomaton()
	if c.state == StateScheduling {
		c.state = StateInvalidScheduling
	}
}

// rebuildAutomaton recreates the automaton over the current producer
// cardinality, preferring persisted probabilities when present and
// falling back to the discounted-grid/uniform defaults otherwise
// (spec.md §4.5).
func (c *Consumer) rebuildAutomaton() {
	n := len(c.producers)
	if n == 0 {
		c.automaton = nil
		return
	}
	var stored map[string]float64
	if c.persist != nil {
		stored, _ = c.persist.Load(c.address)
	}
	initial := make([]float64, n)
	for i, addr := range c.producers {
		if v, ok := stored[addr]; ok {
			initial[i] = v
			continue
		}
		if id.ClassifyAddress(addr) == id.KindGrid {
			initial[i] = automaton.GridProbability(n)
		} else {
			initial[i] = 1.0 / float64(n)
		}
	}
	c.automaton = automaton.New(initial, automaton.LearningConstant)
}

func (c *Consumer) persistProbabilities() {
	if c.automaton == nil || c.persist == nil {
		return
	}
	probs := c.automaton.Probabilities()
	out := make(map[string]float64, len(probs))
	for i, addr := range c.producers {
		out[addr] = probs[i]
	}
	_ = c.persist.Save(c.address, out)
}

// shutdown implements spec.md §4.5's Shutdown sequence: persist current
// probabilities (the closest analogue this actor model has to the
// original's destructor-time save), proactively kill a confirmed
// selection, then atomically swap in the draining handler.
func (c *Consumer) shutdown(actorManager string) {
	c.persistProbabilities()
	c.actorManager = actorManager
	c.draining = true
	if c.state == StateStartTime && c.hasSelectedProducer {
		c.transport.Send(c.address, c.selectedProducer, wire.EncodeBodyless(wire.TagKillProxy))
	}
	c.ref.SetHandler(c.handleDraining)
}

// handleDraining replaces SelectProducer (AcknowledgeProxyRemoval now
// confirms shutdown to the actor-manager instead of retrying) and
// SetStartTime (any ASSIGNED_START_TIME reply, Some or None, now always
// provokes a KillProxy) per spec.md §4.5.
func (c *Consumer) handleDraining(msg actor.Message) {
	if q, ok := msg.Payload.(QuerySelectedProducer); ok {
		c.replySelectedProducer(q)
		return
	}
	body, ok := msg.Payload.(string)
	if !ok {
		return // peer-discovery and reward notifications are moot while draining
	}
	env, err := wire.Split(body)
	if err != nil {
		return
	}
	switch env.Tag {
	case wire.TagAssignedStartTime:
		c.transport.Send(c.address, msg.Sender, wire.EncodeBodyless(wire.TagKillProxy))
	case wire.TagAcknowledgeProxyRemoval:
		c.transport.Send(c.address, c.actorManager, wire.EncodeBodyless(wire.TagShutdown))
	default:
		// ignore anything else while draining
	}
}
