// Package reward implements the Shapley-value Reward-Calculator
// (spec.md §4.7): one per node, maintaining a sparse weighted bipartite
// energy-exchange graph restricted to local consumer rows and
// dispatching each local consumer's share of the neighbourhood's PV
// energy as its selection-automaton feedback.
//
// Grounded on original_source/simulator/CoSSMic/RewardCalculator.hpp/.cpp
// (the base class: local-producer/consumer registries, peer-discovery
// handlers, the Reward.csv writer) and ShapleyReward.cpp (the derived
// class: the energy-exchange matrix, per-row Shapley values as the
// reward numerator, and the node-reward combining formula written to
// Reward.csv). The matrix is a map of maps here rather than an Armadillo
// matrix, since rows/columns grow sparsely and arbitrarily rather than
// over a dense, pre-sized grid.
package reward

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"cossmic/internal/actor"
	"cossmic/internal/actormanager"
	"cossmic/internal/clock"
	"cossmic/internal/consumer"
	"cossmic/internal/id"
	"cossmic/internal/transport"
	"cossmic/internal/wire"
)

type registerConsumer struct{ address string }

type addEnergy struct {
	consumer   string
	energy     float64
	producerID id.ID
}

// PeerAdded notifies the calculator that a new peer reward-calculator
// address has joined the node's directory.
type PeerAdded struct{ Address string }

// PeerRemoved notifies the calculator that a known peer has left.
type PeerRemoved struct{ Address string }

// Calculator is the Reward-Calculator actor. All fields are touched
// only from within its own dispatch goroutine.
type Calculator struct {
	system              *actor.System
	transport           transport.Transport
	clk                 clock.Clock
	address             string
	gridID              id.ID
	logPath             string
	actorManagerAddress string
	ref                 actor.Ref

	// graph[consumerAddr][producerID] is the cumulative energy that
	// consumer drew from that producer. Producer ids here are always
	// mode-less (id.New, never id.NewWithMode), so they compare safely
	// as map keys.
	graph  map[string]map[id.ID]float64
	active map[string]struct{}
	peers  map[string]struct{}

	neighbourhoodPVEnergy float64
	totalPVShared         float64
}

// Spawn constructs and registers a node's Reward-Calculator at address
// (conventionally id.RewardCalculatorAddress(domain)), bootstrapping its
// peer set from the actor directory the same way internal/consumer
// bootstraps its producer set. actorManagerAddress is looked up lazily
// on first notification rather than resolved at construction time, so
// the calculator and the actor-manager can be spawned in either order
// (id.AddressActorManager is a fixed, well-known address, not a
// dynamically assigned one).
func Spawn(system *actor.System, address, actorManagerAddress string, tr transport.Transport, clk clock.Clock, gridID id.ID, logPath string) (*Calculator, actor.Ref) {
	c := &Calculator{
		system:              system,
		transport:           tr,
		clk:                 clk,
		address:             address,
		gridID:              gridID,
		logPath:             logPath,
		actorManagerAddress: actorManagerAddress,
		graph:               make(map[string]map[id.ID]float64),
		active:              make(map[string]struct{}),
		peers:               make(map[string]struct{}),
	}
	c.ref = system.Spawn(address, c.handle)

	for _, addr := range system.Addresses(id.PrefixRewardCalculator) {
		if addr != address {
			c.peers[addr] = struct{}{}
		}
	}
	return c, c.ref
}

// Address returns the calculator's actor address.
func (c *Calculator) Address() string { return c.address }

// RegisterConsumer implements actormanager.RewardRegistrar: it enqueues
// the registration onto the calculator's own mailbox rather than
// mutating graph/active directly, since the call arrives from the
// actor-manager's dispatch goroutine, not the calculator's.
func (c *Calculator) RegisterConsumer(address string) {
	c.ref.Send(c.address, registerConsumer{address: address})
}

// AddEnergy implements actormanager.RewardRegistrar the same way.
func (c *Calculator) AddEnergy(consumerAddr string, energy float64, producerID id.ID) {
	c.ref.Send(c.address, addEnergy{consumer: consumerAddr, energy: energy, producerID: producerID})
}

func (c *Calculator) handle(msg actor.Message) {
	switch body := msg.Payload.(type) {
	case registerConsumer:
		c.registerConsumer(body.address)
	case addEnergy:
		c.onAddEnergy(body.consumer, body.energy, body.producerID)
	case PeerAdded:
		c.peers[body.Address] = struct{}{}
	case PeerRemoved:
		delete(c.peers, body.Address)
	case string:
		c.handleWire(msg.Sender, body)
	default:
		panic(fmt.Sprintf("reward %s: unexpected message type %T", c.address, msg.Payload))
	}
}

func (c *Calculator) handleWire(sender, raw string) {
	env, err := wire.Split(raw)
	if err != nil {
		return
	}
	switch env.Tag {
	case wire.TagNewPVEnergy:
		cmd, err := wire.DecodeNewPVEnergy(env.Body)
		if err != nil {
			return
		}
		c.onPeerPVEnergy(cmd.Energy, cmd.ProducerID)
	case wire.TagRewardCalculatorShutdown:
		delete(c.peers, sender)
	default:
		panic(fmt.Sprintf("reward %s: unexpected wire tag %s", c.address, env.Tag))
	}
}

// registerConsumer implements RewardCalculator::NewConsumer / ShapleyValueReward::NewConsumer:
// a local consumer gains a row in the energy-exchange graph the first
// time it registers; re-registration (the same address serving a new
// load) is a no-op over an existing row, matching the original's
// "row already present" branch.
func (c *Calculator) registerConsumer(address string) {
	c.active[address] = struct{}{}
	if _, ok := c.graph[address]; !ok {
		c.graph[address] = make(map[id.ID]float64)
	}
}

// onAddEnergy implements ShapleyValueReward::NewEnergy followed by
// RewardCalculator::NewEnergy: grid energy is housekeeping only, any
// other producer's energy extends the graph, recomputes this
// consumer's Shapley value, is broadcast to peers, and drives a reward
// dispatch to every active local consumer plus a Reward.csv append.
func (c *Calculator) onAddEnergy(consumerAddr string, energy float64, producerID id.ID) {
	if producerID != c.gridID {
		row := c.graph[consumerAddr]
		if row == nil {
			row = make(map[id.ID]float64)
			c.graph[consumerAddr] = row
		}
		row[producerID] += energy

		c.neighbourhoodPVEnergy += energy
		if c.isLocalProducer(producerID) {
			c.totalPVShared += energy
		}
		c.dispatchRewards()
		c.appendRewardLog()

		for peer := range c.peers {
			c.transport.Send(c.address, peer, wire.NewPVEnergy{Energy: energy, ProducerID: producerID}.Encode())
		}
	}

	delete(c.active, consumerAddr)
	if ref, ok := c.system.Lookup(c.actorManagerAddress); ok {
		ref.Send(c.address, actormanager.RewardComputed{Consumer: consumerAddr})
	}
}

// onPeerPVEnergy implements RewardCalculator::NewPVEnergyValue /
// ShapleyValueReward::NewPVEnergyValue for energy reported by a peer
// calculator: the neighbourhood accumulator grows, the node's own
// shared-energy accumulator grows too if the named producer is hosted
// here, and local consumers are re-rewarded against the larger
// denominator. Unlike onAddEnergy, this never re-broadcasts (it would
// otherwise amplify across every peer indefinitely) and never touches
// Reward.csv (the log records this node's own energy-consumption
// events, not every neighbourhood ripple).
func (c *Calculator) onPeerPVEnergy(energy float64, producerID id.ID) {
	c.neighbourhoodPVEnergy += energy
	if c.isLocalProducer(producerID) {
		c.totalPVShared += energy
	}
	c.dispatchRewards()
}

func (c *Calculator) isLocalProducer(producerID id.ID) bool {
	_, ok := c.system.Lookup(id.PVProducerAddress(producerID))
	return ok
}

// shapleyValue is the per-row sum of the energy-exchange graph: the raw
// cumulative energy a consumer has drawn across every non-grid
// producer, per spec.md §8's row-sum invariant.
func (c *Calculator) shapleyValue(consumerAddr string) float64 {
	var sum float64
	for _, energy := range c.graph[consumerAddr] {
		sum += energy
	}
	return sum
}

// dispatchRewards sends every active local consumer its updated reward,
// 2*shapley[row]/neighbourhoodPVEnergy (spec.md §4.7), directly as a
// typed consumer.Reward value: a reward calculator's rows are, by
// construction, always local consumers, so there is never a wire hop to
// make.
func (c *Calculator) dispatchRewards() {
	if c.neighbourhoodPVEnergy <= 0 {
		return
	}
	for addr := range c.active {
		ref, ok := c.system.Lookup(addr)
		if !ok {
			continue
		}
		value := 2 * c.shapleyValue(addr) / c.neighbourhoodPVEnergy
		ref.Send(c.address, consumer.Reward{Value: value})
	}
}

// appendRewardLog writes "now node_reward total_pv_shared" to
// Reward.csv, matching RewardCalculator::SaveRewardFile's three-column,
// space-separated, append-only format, combining the consumer-side and
// producer-side halves of the weighted graph per
// ShapleyValueReward::NewPVEnergyValue's node-reward formula.
func (c *Calculator) appendRewardLog() {
	var consumerReward float64
	for addr := range c.active {
		consumerReward += c.shapleyValue(addr) / c.neighbourhoodPVEnergy
	}
	var producerShare float64
	if c.neighbourhoodPVEnergy > 0 {
		producerShare = c.totalPVShared / c.neighbourhoodPVEnergy
	}
	nodeReward := (consumerReward + producerShare) / 2.0

	f, err := os.OpenFile(c.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ' '
	_ = w.Write([]string{
		strconv.FormatInt(int64(c.clk.Now()), 10),
		strconv.FormatFloat(nodeReward, 'f', -1, 64),
		strconv.FormatFloat(c.totalPVShared, 'f', -1, 64),
	})
	w.Flush()
}

// ShutDown implements the destructor sequence from
// RewardCalculator::~RewardCalculator: every known peer is told this
// calculator is leaving. Unlike a producer or consumer, the
// Reward-Calculator is a per-domain singleton rather than a
// per-id live/draining entity, so cmd/node calls this directly at node
// shutdown instead of routing it through the actor-manager's
// live/deleted bookkeeping (see DESIGN.md's Open Question Decisions).
func (c *Calculator) ShutDown() {
	for peer := range c.peers {
		c.transport.Send(c.address, peer, wire.EncodeBodyless(wire.TagRewardCalculatorShutdown))
	}
}
