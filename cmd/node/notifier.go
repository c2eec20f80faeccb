package main

import (
	"cossmic/internal/id"
	"cossmic/internal/logging"
)

// taskManagerNotifier is the dependency-injection seam DESIGN.md's
// internal/consumer/internal/actormanager entries describe: the task
// manager is external and out of scope, so this implementation just
// logs every notification it would otherwise have forwarded over a
// real integration, and closes done once the actor-manager confirms a
// shutdown it requested has finished draining.
type taskManagerNotifier struct {
	log  *logging.Logger
	done chan struct{}
}

func newTaskManagerNotifier(log *logging.Logger) *taskManagerNotifier {
	return &taskManagerNotifier{log: log, done: make(chan struct{})}
}

func (t *taskManagerNotifier) StartTime(loadID id.ID, at id.Time, sequence uint64, producerAddress string) {
	t.log.Printf("load %s: start time %d assigned by %s (sequence %d)", loadID, at, producerAddress, sequence)
}

func (t *taskManagerNotifier) CancelStartTime(loadID id.ID) {
	t.log.Printf("load %s: start time cancelled", loadID)
}

func (t *taskManagerNotifier) DeleteLoad(loadID id.ID, energy float64, producerID id.ID) {
	t.log.Printf("load %s: removed, %.3f energy drawn from %s", loadID, energy, producerID)
}

func (t *taskManagerNotifier) ConfirmShutDown() {
	t.log.Printf("shutdown complete")
	close(t.done)
}
