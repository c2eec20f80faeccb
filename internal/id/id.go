// Package id provides the structured device identifier and time-interval
// value types shared by every actor in the scheduling core.
package id

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidID is returned when a textual ID cannot be parsed.
var ErrInvalidID = errors.New("id: malformed identifier")

// ID is a structured device identifier: household, device, and an
// optional mode (for loads with several operational programs). set
// distinguishes a deliberately constructed ID (even household 0, device
// 0, as the grid's) from the zero value of an unchecked, never-parsed
// ID{}. Household/Device/Mode alone can't do that, since New(0, 0) is
// bit-for-bit the same struct as ID{}.
type ID struct {
	Household uint64
	Device    uint64
	Mode      *uint64
	set       bool
}

// New builds a producer/grid-style ID with no mode.
func New(household, device uint64) ID {
	return ID{Household: household, Device: device, set: true}
}

// NewWithMode builds a load-style ID with an explicit mode.
func NewWithMode(household, device, mode uint64) ID {
	m := mode
	return ID{Household: household, Device: device, Mode: &m, set: true}
}

// Grid is the reserved global-grid identifier, [0]:[0].
var Grid = New(0, 0)

// Valid reports whether the ID's textual form is non-empty, i.e. whether
// it was actually constructed rather than left as the zero value read
// from an unchecked parse.
func (i ID) Valid() bool {
	return i.String() != ""
}

// String renders the canonical [h]:[d] or [h]:[d]:[m] textual form.
func (i ID) String() string {
	if !i.set {
		return ""
	}
	if i.Mode != nil {
		return fmt.Sprintf("%d:%d:%d", i.Household, i.Device, *i.Mode)
	}
	return fmt.Sprintf("%d:%d", i.Household, i.Device)
}

// Parse parses the canonical textual form produced by String.
func Parse(s string) (ID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	household, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}
	device, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}
	out := New(household, device)
	if len(parts) == 3 {
		mode, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return ID{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
		}
		out = NewWithMode(household, device, mode)
	}
	return out, nil
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Compare orders IDs lexicographically over (household, device, mode),
// where an absent mode sorts before any present mode.
func (i ID) Compare(other ID) int {
	if i.Household != other.Household {
		return cmpUint(i.Household, other.Household)
	}
	if i.Device != other.Device {
		return cmpUint(i.Device, other.Device)
	}
	switch {
	case i.Mode == nil && other.Mode == nil:
		return 0
	case i.Mode == nil:
		return -1
	case other.Mode == nil:
		return 1
	default:
		return cmpUint(*i.Mode, *other.Mode)
	}
}

// Equal reports whether the two IDs refer to the same device/mode.
func (i ID) Equal(other ID) bool {
	return i.Compare(other) == 0
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Kind classifies an actor address by its prefix, the only way to
// determine an actor's type given just its address.
type Kind int

const (
	KindUnknown Kind = iota
	KindProducer
	KindPVProducer
	KindConsumer
	KindGrid
	KindActorManager
	KindRewardCalculator
	KindPrediction
	KindTaskManager
)

// Address prefixes, per spec.md §6.
const (
	PrefixProducer         = "producer"
	PrefixPVProducer       = "pv_producer"
	PrefixConsumer         = "consumer"
	PrefixGrid             = "grid"
	AddressActorManager    = "actormanager"
	AddressTaskManager     = "taskmanager"
	PrefixRewardCalculator = "RewardCalculator_"
	PrefixPrediction       = "prediction"
)

// ProducerAddress returns the generic producer actor address for id.
func ProducerAddress(i ID) string { return PrefixProducer + i.String() }

// PVProducerAddress returns the PV-producer actor address for id.
func PVProducerAddress(i ID) string { return PrefixPVProducer + i.String() }

// ConsumerAddress returns the consumer-agent actor address for id.
func ConsumerAddress(i ID) string { return PrefixConsumer + i.String() }

// GridAddress returns the grid actor address for id, computed on demand
// from the grid's own id rather than a package-level global (see
// DESIGN.md's "Global mutable state" resolution).
func GridAddress(i ID) string { return PrefixGrid + i.String() }

// PredictionAddress returns the predictor actor address for id.
func PredictionAddress(i ID) string { return PrefixPrediction + i.String() }

// RewardCalculatorAddress returns this node's reward-calculator address.
func RewardCalculatorAddress(domain string) string { return PrefixRewardCalculator + domain }

// ClassifyAddress returns the Kind implied by an address's prefix.
func ClassifyAddress(addr string) Kind {
	switch {
	case addr == AddressActorManager:
		return KindActorManager
	case addr == AddressTaskManager:
		return KindTaskManager
	case strings.HasPrefix(addr, PrefixRewardCalculator):
		return KindRewardCalculator
	case strings.HasPrefix(addr, PrefixPVProducer):
		return KindPVProducer
	case strings.HasPrefix(addr, PrefixProducer):
		return KindProducer
	case strings.HasPrefix(addr, PrefixConsumer):
		return KindConsumer
	case strings.HasPrefix(addr, PrefixGrid):
		return KindGrid
	case strings.HasPrefix(addr, PrefixPrediction):
		return KindPrediction
	default:
		return KindUnknown
	}
}
