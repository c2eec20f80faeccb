// Package grid implements the Grid producer (spec.md §4.8): an
// infinite-capacity producer that accepts every Schedule at its earliest
// start time. It is the fallback every Consumer-Agent can always reach,
// so scheduling never deadlocks on a fully booked PV fleet.
//
// Grounded on original_source/simulator/CoSSMic/Grid.hpp/.cpp, which
// differs from the generic Producer only in its trivial scheduling
// callback; everything else (proxy bookkeeping, KillProxy, Shutdown
// draining) is the generic internal/producer.Producer unmodified.
package grid

import (
	"cossmic/internal/actor"
	"cossmic/internal/producer"
	"cossmic/internal/transport"
	"cossmic/internal/wire"
)

// Spawn constructs a Grid producer at address: every non-trigger
// Schedule is granted its earliest start time immediately.
func Spawn(system *actor.System, address string, tr transport.Transport) (*producer.Producer, actor.Ref) {
	return producer.Spawn(system, address, tr, onSchedule)
}

func onSchedule(p *producer.Producer, consumer string, cmd wire.Schedule, trigger bool) {
	if trigger {
		return
	}
	for _, h := range p.Arena().Handles() {
		st, _ := p.Arena().Get(h)
		if st.Consumer != consumer {
			continue
		}
		st.SetAssignedStartTime(cmd.EST)
		p.Transport().Send(p.Address(), consumer, wire.AssignedStartTime{Time: cmd.EST, Set: true}.Encode())
		return
	}
}
