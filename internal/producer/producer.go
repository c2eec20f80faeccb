// Package producer implements the generic Producer actor (spec.md §4.2):
// it owns a set of ConsumerProxy records, creates one whenever a
// non-trigger Schedule arrives, removes one on KillProxy, and atomically
// swaps into a drain-and-reject mode on Shutdown.
//
// Grounded on original_source/simulator/CoSSMic/Producer.hpp/.cpp
// (NewLoad/KillProxy/ShutDownHandler/RejectLoads/AgentTermination), with
// the proxy list reimplemented over internal/proxy's generational arena
// in place of the original's std::list<shared_ptr<ConsumerProxy>>, and
// handler swapping done through internal/actor.Ref.SetHandler instead of
// Theron's RegisterHandler/DeregisterHandler pair.
package producer

import (
	"fmt"

	"cossmic/internal/actor"
	"cossmic/internal/id"
	"cossmic/internal/proxy"
	"cossmic/internal/transport"
	"cossmic/internal/wire"
)

// ConsumerProxyState is the producer-side record for one scheduled load,
// spec.md §"ConsumerProxy state". It is plain data; the actor model's
// single-goroutine-per-producer guarantee is what protects it, not a
// mutex.
type ConsumerProxyState struct {
	Consumer string
	Producer string
	Allowed  id.TimeInterval
	Duration id.Time
	Energy   float64

	AssignedStartTime id.Time
	HasStartTime      bool
}

// Contribution is the cost a proposed start time for this proxy
// contributes within interval [L, U]: total_energy * (U - (start +
// duration)), spec.md §4.6's StartTimeProposal response.
func (c *ConsumerProxyState) Contribution(proposedStart id.Time, interval id.TimeInterval) float64 {
	return c.Energy * float64(interval.Hi-(proposedStart+c.Duration))
}

// SetAssignedStartTime applies spec.md §4.6's idempotent fast path:
// reassigning the same value is a no-op reported by a false return.
func (c *ConsumerProxyState) SetAssignedStartTime(t id.Time) bool {
	if c.HasStartTime && c.AssignedStartTime == t {
		return false
	}
	c.AssignedStartTime = t
	c.HasStartTime = true
	return true
}

// OnSchedule is the per-kind scheduling hook a concrete producer (Grid,
// PV-Producer) supplies: it runs after NewLoad has (for non-trigger
// requests) inserted the new proxy into the arena.
type OnSchedule func(p *Producer, consumer string, cmd wire.Schedule, trigger bool)

// OnKillProxy is the optional per-kind extension spec.md §4.3 describes
// for PV-Producer's KillProxy ("extends the generic handler"): it runs
// after the proxy has already been removed from the arena, before the
// AcknowledgeProxyRemoval reply is sent.
type OnKillProxy func(p *Producer, consumer string)

// Producer is the generic scheduling actor every producer kind embeds.
type Producer struct {
	system    *actor.System
	transport transport.Transport
	address   string
	ref       actor.Ref

	arena        *proxy.Arena[*ConsumerProxyState]
	onSchedule   OnSchedule
	onKillProxy  OnKillProxy
	actorManager string
	draining     bool
}

// SetOnKillProxy installs the per-kind KillProxy extension. Called once
// by a concrete producer constructor right after Spawn, since the hook
// itself typically needs the *Producer Spawn returns.
func (p *Producer) SetOnKillProxy(h OnKillProxy) { p.onKillProxy = h }

// Spawn constructs and registers a generic Producer at address. tr is
// used to acknowledge proxy removal and answer assigned start times;
// onSchedule is invoked for every Schedule message, real or trigger.
func Spawn(system *actor.System, address string, tr transport.Transport, onSchedule OnSchedule) (*Producer, actor.Ref) {
	p := &Producer{
		system:     system,
		transport:  tr,
		address:    address,
		arena:      proxy.NewArena[*ConsumerProxyState](),
		onSchedule: onSchedule,
	}
	p.ref = system.Spawn(address, p.handle)
	return p, p.ref
}

// Address returns the producer's actor address.
func (p *Producer) Address() string { return p.address }

// Arena exposes the proxy arena for scheduling hooks (pvproducer's
// partitioning and objective computation read it directly).
func (p *Producer) Arena() *proxy.Arena[*ConsumerProxyState] { return p.arena }

// Transport exposes the producer's transport for hooks that need to send
// replies (e.g. Grid's immediate AssignedStartTime).
func (p *Producer) Transport() transport.Transport { return p.transport }

// handle accepts two message shapes: typed Go values sent directly via
// actor.Ref by a same-node, same-process collaborator (the Predictor's
// trigger Schedule, the actor-manager's Shutdown), and wire-encoded
// strings arriving through a Transport from a consumer that may be on
// another node entirely (spec.md §6). Both are dispatched identically
// once decoded.
func (p *Producer) handle(msg actor.Message) {
	switch body := msg.Payload.(type) {
	case wire.Schedule:
		p.schedule(msg.Sender, body)
	case wire.Tag:
		p.dispatchTag(msg.Sender, body)
	case string:
		p.handleWire(msg.Sender, body)
	default:
		panic(fmt.Sprintf("producer %s: unexpected message type %T", p.address, msg.Payload))
	}
}

func (p *Producer) handleWire(sender, raw string) {
	env, err := wire.Split(raw)
	if err != nil {
		return
	}
	switch env.Tag {
	case wire.TagSchedule:
		cmd, err := wire.DecodeSchedule(env.Body)
		if err != nil {
			return
		}
		p.schedule(sender, cmd)
	case wire.TagKillProxy, wire.TagShutdown:
		p.dispatchTag(sender, env.Tag)
	default:
		panic(fmt.Sprintf("producer %s: unexpected wire tag %s", p.address, env.Tag))
	}
}

func (p *Producer) dispatchTag(sender string, tag wire.Tag) {
	switch tag {
	case wire.TagKillProxy:
		p.killProxy(sender)
	case wire.TagShutdown:
		p.shutdown(sender)
	default:
		panic(fmt.Sprintf("producer %s: unexpected tag %s", p.address, tag))
	}
}

func (p *Producer) insertProxy(consumer string, cmd wire.Schedule) {
	p.arena.Insert(&ConsumerProxyState{
		Consumer: consumer,
		Producer: p.address,
		Allowed:  id.TimeInterval{Lo: cmd.EST, Hi: cmd.LST},
		Duration: cmd.Duration,
		Energy:   cmd.Energy,
	})
}

func (p *Producer) schedule(consumer string, cmd wire.Schedule) {
	trigger := cmd.IsTrigger()
	if !trigger {
		p.insertProxy(consumer, cmd)
	}
	if p.onSchedule != nil {
		p.onSchedule(p, consumer, cmd, trigger)
	}
}

// findByConsumer performs the original's FindConsumer linear search over
// the proxy arena.
func (p *Producer) findByConsumer(consumer string) (proxy.Handle, bool) {
	for _, h := range p.arena.Handles() {
		st, _ := p.arena.Get(h)
		if st.Consumer == consumer {
			return h, true
		}
	}
	return proxy.Handle{}, false
}

func (p *Producer) killProxy(consumer string) {
	h, ok := p.findByConsumer(consumer)
	if !ok {
		panic(fmt.Sprintf("producer %s: KillProxy for unassigned consumer %s", p.address, consumer))
	}
	p.arena.Remove(h)
	if p.onKillProxy != nil {
		p.onKillProxy(p, consumer)
	}
	p.transport.Send(p.address, consumer, wire.EncodeBodyless(wire.TagAcknowledgeProxyRemoval))

	if p.draining && p.arena.Len() == 0 {
		p.transport.Send(p.address, p.actorManager, wire.EncodeBodyless(wire.TagShutdown))
	}
}

// shutdown swaps the producer into its draining handler, matching
// Producer::ShutDownHandler: new Schedule requests are rejected
// immediately and KillProxy additionally checks for drain completion.
func (p *Producer) shutdown(actorManager string) {
	p.actorManager = actorManager
	p.draining = true
	p.ref.SetHandler(p.handleDraining)

	if p.arena.Len() == 0 {
		p.transport.Send(p.address, actorManager, wire.EncodeBodyless(wire.TagShutdown))
		return
	}
	for _, h := range p.arena.Handles() {
		st, _ := p.arena.Get(h)
		if st.HasStartTime {
			p.transport.Send(p.address, st.Consumer, wire.AssignedStartTime{}.Encode())
		}
	}
}

func (p *Producer) handleDraining(msg actor.Message) {
	switch body := msg.Payload.(type) {
	case wire.Schedule:
		p.rejectLoad(msg.Sender, body)
	case wire.Tag:
		p.dispatchDrainingTag(msg.Sender, body)
	case string:
		env, err := wire.Split(body)
		if err != nil {
			return
		}
		switch env.Tag {
		case wire.TagSchedule:
			cmd, err := wire.DecodeSchedule(env.Body)
			if err != nil {
				return
			}
			p.rejectLoad(msg.Sender, cmd)
		case wire.TagKillProxy:
			p.dispatchDrainingTag(msg.Sender, env.Tag)
		default:
			panic(fmt.Sprintf("producer %s (draining): unexpected wire tag %s", p.address, env.Tag))
		}
	default:
		panic(fmt.Sprintf("producer %s (draining): unexpected message type %T", p.address, msg.Payload))
	}
}

func (p *Producer) dispatchDrainingTag(sender string, tag wire.Tag) {
	switch tag {
	case wire.TagKillProxy:
		p.killProxy(sender)
	default:
		panic(fmt.Sprintf("producer %s (draining): unexpected tag %s", p.address, tag))
	}
}

// rejectLoad mirrors Producer::RejectLoads: a proxy is still recorded so
// bookkeeping (and any later stray KillProxy) stays consistent, but the
// per-kind scheduling hook never runs, and the consumer is told directly
// that it has no assigned start time so it moves on to another producer.
func (p *Producer) rejectLoad(consumer string, cmd wire.Schedule) {
	if !cmd.IsTrigger() {
		p.insertProxy(consumer, cmd)
	}
	p.transport.Send(p.address, consumer, wire.AssignedStartTime{}.Encode())
}
