// Package actormanager implements the per-node Actor-Manager (spec.md
// §4.1): the single point of contact for the task manager, owning the
// live/deleted producer and consumer directories and the shutdown
// sequencing across them.
//
// Grounded on original_source/simulator/CoSSMic/ActorManager.hpp/.cpp
// (CreateProducer/CreateLoad/DeleteLoad/RewardComputed/ShutDown/
// ConfirmShutDown and the four live/deleted bookkeeping sets), with the
// sets implemented as plain maps guarded only by the actor's own single
// dispatch goroutine, following the same no-mutex-needed reasoning
// internal/producer and internal/consumer already apply.
package actormanager

import (
	"fmt"
	"os"
	"strings"
	"time"

	"cossmic/internal/actor"
	"cossmic/internal/clock"
	"cossmic/internal/config"
	"cossmic/internal/consumer"
	"cossmic/internal/id"
	"cossmic/internal/ingest"
	"cossmic/internal/predictor"
	"cossmic/internal/pvproducer"
	"cossmic/internal/store"
	"cossmic/internal/transport"
	"cossmic/internal/wire"
)

// TaskManager is the notification surface the actor-manager drives on
// the external task manager. It embeds consumer.TaskManager so a single
// implementation handed to Spawn covers both the per-load notifications
// a Consumer-Agent sends directly and the manager's own load/shutdown
// confirmations (spec.md §4.1's DeleteLoad/ShutDown replies).
type TaskManager interface {
	consumer.TaskManager

	// DeleteLoad confirms a load's terminal removal, forwarding the
	// producer it was last known to be assigned to (the zero id.ID if
	// none was ever resolved).
	DeleteLoad(loadID id.ID, energy float64, producerID id.ID)

	// ConfirmShutDown reports that every live and draining agent on this
	// node has finished terminating.
	ConfirmShutDown()
}

// RewardRegistrar is the subset of the reward calculator's API the
// actor-manager drives directly.
type RewardRegistrar interface {
	RegisterConsumer(address string)
	AddEnergy(consumerAddr string, energy float64, producerID id.ID)
}

type consumerEntry struct {
	load          consumer.LoadRequest
	producerID    id.ID
	hasProducerID bool
}

// ActorManager is the per-node lifecycle manager. All fields are
// touched only from within its own dispatch goroutine.
type ActorManager struct {
	system    *actor.System
	transport transport.Transport
	clk       clock.Clock
	cfg       *config.Config
	persist   *store.Store

	taskManager        TaskManager
	reward             RewardRegistrar
	address            string
	taskManagerAddress string

	liveProducers    map[string]struct{}
	deletedProducers map[string]struct{}
	liveConsumers    map[string]*consumerEntry
	deletedConsumers map[string]*consumerEntry

	globalShutdown bool
	ref            actor.Ref
}

// Spawn constructs and registers the node's Actor-Manager.
func Spawn(system *actor.System, address, taskManagerAddress string, tr transport.Transport, clk clock.Clock, cfg *config.Config, persist *store.Store, tm TaskManager, reward RewardRegistrar) (*ActorManager, actor.Ref) {
	m := &ActorManager{
		system:             system,
		transport:          tr,
		clk:                clk,
		cfg:                cfg,
		persist:            persist,
		taskManager:        tm,
		reward:             reward,
		address:            address,
		taskManagerAddress: taskManagerAddress,
		liveProducers:      make(map[string]struct{}),
		deletedProducers:   make(map[string]struct{}),
		liveConsumers:      make(map[string]*consumerEntry),
		deletedConsumers:   make(map[string]*consumerEntry),
	}
	m.ref = system.Spawn(address, m.handle)
	return m, m.ref
}

// Address returns the actor-manager's actor address.
func (m *ActorManager) Address() string { return m.address }

// RewardComputed notifies the actor-manager that the reward calculator
// has dispatched a consumer's reward (spec.md §4.1).
type RewardComputed struct{ Consumer string }

func (m *ActorManager) handle(msg actor.Message) {
	switch body := msg.Payload.(type) {
	case RewardComputed:
		m.rewardComputed(body.Consumer)
	case wire.Load:
		// self-requeue retry for a load whose consumer is still draining.
		m.createLoad(body)
	case string:
		m.handleWire(msg.Sender, body)
	default:
		panic(fmt.Sprintf("actormanager: unexpected message type %T", msg.Payload))
	}
}

func (m *ActorManager) handleWire(sender, raw string) {
	env, err := wire.Split(raw)
	if err != nil {
		return
	}
	switch env.Tag {
	case wire.TagCreateProducer:
		cmd, err := wire.DecodeCreateProducer(env.Body)
		if err != nil {
			return
		}
		m.createProducer(cmd)
	case wire.TagLoad:
		cmd, err := wire.DecodeLoad(env.Body)
		if err != nil {
			return
		}
		m.createLoad(cmd)
	case wire.TagDeleteLoad:
		cmd, err := wire.DecodeDeleteLoad(env.Body)
		if err != nil {
			return
		}
		m.deleteLoad(cmd)
	case wire.TagShutdown:
		if sender == m.taskManagerAddress {
			m.shutDown()
		} else {
			m.confirmShutDown(sender)
		}
	default:
		panic(fmt.Sprintf("actormanager: unexpected wire tag %s", env.Tag))
	}
}

// createProducer implements spec.md §4.1's CreateProducer. Battery and
// standalone Grid requests are parsed but always silently ignored (§9
// Open Question 1); only PhotoVoltaic actually instantiates anything.
func (m *ActorManager) createProducer(cmd wire.CreateProducer) {
	if cmd.Kind != wire.KindPV {
		return
	}
	addr := id.PVProducerAddress(cmd.ID)
	if _, dead := m.deletedProducers[addr]; dead {
		return
	}
	if _, live := m.liveProducers[addr]; live {
		return
	}

	predAddr := id.PredictionAddress(cmd.ID)
	predictor.Spawn(m.system, predAddr, addr, m.clk, m.cfg.RelativePrediction())
	pvproducer.Spawn(m.system, addr, predAddr, m.transport, m.clk, m.cfg)
	m.liveProducers[addr] = struct{}{}
	m.announcePeerAdded(addr)

	if cmd.PredictionFile != "" {
		if predRef, ok := m.system.Lookup(predAddr); ok {
			predRef.Send(m.address, predictor.UpdatePredictionFromFile{File: cmd.PredictionFile})
		}
	}
}

// announcePeerAdded tells every currently live consumer about a
// newly-created producer, so a load already mid-dialogue with a
// narrower producer set picks the new one up on its next scheduling
// retry rather than only discovering it via its own spawn-time
// directory snapshot. Mirrors the original roster-join notification
// ConsumerAgent::HandlePeerAdded responds to.
func (m *ActorManager) announcePeerAdded(producerAddr string) {
	for consumerAddr := range m.liveConsumers {
		if ref, ok := m.system.Lookup(consumerAddr); ok {
			ref.Send(m.address, consumer.PeerAdded{Address: producerAddr})
		}
	}
}

// createLoad implements spec.md §4.1's CreateLoad, including the
// causality check, the draining-set self-requeue, and the live-set
// idempotent drop.
func (m *ActorManager) createLoad(cmd wire.Load) {
	addr := id.ConsumerAddress(cmd.ID)
	now := m.clk.Now()

	if cmd.LST < now+m.cfg.FixedSchedulingDelay() {
		if m.taskManager != nil {
			m.taskManager.CancelStartTime(cmd.ID)
		}
		return
	}
	if _, draining := m.deletedConsumers[addr]; draining {
		m.ref.Send(m.address, cmd)
		return
	}
	if _, live := m.liveConsumers[addr]; live {
		return
	}

	duration, energy, err := m.readProfile(cmd.Profile)
	if err != nil {
		if m.taskManager != nil {
			m.taskManager.CancelStartTime(cmd.ID)
		}
		return
	}

	load := consumer.LoadRequest{
		ID:       cmd.ID,
		EST:      cmd.EST,
		LST:      cmd.LST,
		Duration: duration,
		Energy:   energy,
		Sequence: cmd.Sequence,
	}
	consumer.Spawn(m.system, addr, m.transport, m.taskManager, m.persist, load)
	m.liveConsumers[addr] = &consumerEntry{load: load}
	if m.reward != nil {
		m.reward.RegisterConsumer(addr)
	}
}

func (m *ActorManager) readProfile(path string) (id.Time, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	samples, err := ingest.ParseProfile(f)
	if err != nil {
		return 0, 0, err
	}
	if err := ingest.EnsureMonotoneTime(samples); err != nil {
		return 0, 0, err
	}
	return ingest.Duration(samples), ingest.TotalEnergy(samples), nil
}

// deleteLoad implements spec.md §4.1's DeleteLoad: the consumer moves
// from live to draining and the reward calculator learns of the energy
// it drew from producerID.
func (m *ActorManager) deleteLoad(cmd wire.DeleteLoad) {
	addr := id.ConsumerAddress(cmd.LoadID)
	entry, ok := m.liveConsumers[addr]
	if !ok {
		return
	}
	entry.producerID = cmd.ProducerID
	entry.hasProducerID = true
	delete(m.liveConsumers, addr)
	m.deletedConsumers[addr] = entry

	if m.reward != nil {
		m.reward.AddEnergy(addr, cmd.Energy, cmd.ProducerID)
	}
}

// rewardComputed implements spec.md §4.1's RewardComputed: tell the
// named consumer to shut down.
func (m *ActorManager) rewardComputed(consumerAddr string) {
	m.transport.Send(m.address, consumerAddr, wire.EncodeBodyless(wire.TagShutdown))
}

// shutDown implements spec.md §4.1's node-wide ShutDown: every live
// consumer is cancelled (using a best-effort, bounded-retry lookup of
// its currently selected producer — spec.md §5's "the shutdown thread
// must wait" suspension point, bounded here rather than unbounded so a
// consumer that never selects anything cannot hang the sequence
// forever), then every live producer is told to shut down, then the
// global-shutdown flag is set.
func (m *ActorManager) shutDown() {
	consumerAddrs := make([]string, 0, len(m.liveConsumers))
	for addr := range m.liveConsumers {
		consumerAddrs = append(consumerAddrs, addr)
	}
	for _, addr := range consumerAddrs {
		entry := m.liveConsumers[addr]
		if producerAddr := m.bestEffortSelectedProducer(addr); producerAddr != "" {
			if pid, err := producerIDFromAddress(producerAddr); err == nil {
				entry.producerID = pid
				entry.hasProducerID = true
			}
		}
		delete(m.liveConsumers, addr)
		m.deletedConsumers[addr] = entry
		if m.reward != nil {
			m.reward.AddEnergy(addr, 0, entry.producerID)
		}
	}

	producerAddrs := make([]string, 0, len(m.liveProducers))
	for addr := range m.liveProducers {
		producerAddrs = append(producerAddrs, addr)
	}
	for _, addr := range producerAddrs {
		m.transport.Send(m.address, addr, wire.EncodeBodyless(wire.TagShutdown))
		delete(m.liveProducers, addr)
		m.deletedProducers[addr] = struct{}{}
	}

	m.globalShutdown = true
	m.checkGlobalShutdownComplete()
}

const (
	shutdownQueryAttempts = 5
	shutdownQueryBackoff  = 10 * time.Millisecond
)

func (m *ActorManager) bestEffortSelectedProducer(consumerAddr string) string {
	ref, ok := m.system.Lookup(consumerAddr)
	if !ok {
		return ""
	}
	for attempt := 0; attempt < shutdownQueryAttempts; attempt++ {
		reply := make(chan string, 1)
		ref.Send(m.address, consumer.QuerySelectedProducer{ReplyTo: reply})
		if producerAddr := <-reply; producerAddr != "" {
			return producerAddr
		}
		time.Sleep(shutdownQueryBackoff)
	}
	return ""
}

// confirmShutDown implements spec.md §4.1's ConfirmShutDown.
func (m *ActorManager) confirmShutDown(agentAddr string) {
	if entry, ok := m.deletedConsumers[agentAddr]; ok {
		delete(m.deletedConsumers, agentAddr)
		if m.taskManager != nil {
			m.taskManager.DeleteLoad(entry.load.ID, 0, entry.producerID)
		}
	} else if _, ok := m.deletedProducers[agentAddr]; ok {
		delete(m.deletedProducers, agentAddr)
	}
	m.checkGlobalShutdownComplete()
}

func (m *ActorManager) checkGlobalShutdownComplete() {
	if !m.globalShutdown {
		return
	}
	if len(m.liveProducers) == 0 && len(m.deletedProducers) == 0 &&
		len(m.liveConsumers) == 0 && len(m.deletedConsumers) == 0 {
		if m.taskManager != nil {
			m.taskManager.ConfirmShutDown()
		}
	}
}

func producerIDFromAddress(addr string) (id.ID, error) {
	switch {
	case strings.HasPrefix(addr, id.PrefixPVProducer):
		return id.Parse(strings.TrimPrefix(addr, id.PrefixPVProducer))
	case strings.HasPrefix(addr, id.PrefixGrid):
		return id.Parse(strings.TrimPrefix(addr, id.PrefixGrid))
	case strings.HasPrefix(addr, id.PrefixProducer):
		return id.Parse(strings.TrimPrefix(addr, id.PrefixProducer))
	default:
		return id.ID{}, fmt.Errorf("actormanager: address %q is not a producer", addr)
	}
}
