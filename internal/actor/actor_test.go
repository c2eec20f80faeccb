package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendOrderPerPair(t *testing.T) {
	sys := NewSystem()
	var mu sync.Mutex
	var received []int

	ref := sys.Spawn("worker", func(msg Message) {
		mu.Lock()
		received = append(received, msg.Payload.(int))
		mu.Unlock()
	})

	for i := 0; i < 100; i++ {
		ref.Send("caller", i)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 100
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range received {
		assert.Equal(t, i, v)
	}
}

func TestHandlerSwapIsAtomic(t *testing.T) {
	sys := NewSystem()
	var mu sync.Mutex
	var log []string

	var mbRef Ref
	mbRef = sys.Spawn("switcher", func(msg Message) {
		mu.Lock()
		log = append(log, "before:"+msg.Payload.(string))
		mu.Unlock()
		if msg.Payload.(string) == "swap" {
			sys.mailboxes["switcher"].SetHandler(func(msg Message) {
				mu.Lock()
				log = append(log, "after:"+msg.Payload.(string))
				mu.Unlock()
			})
		}
	})

	mbRef.Send("x", "one")
	mbRef.Send("x", "swap")
	mbRef.Send("x", "two")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(log) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"before:one", "before:swap", "after:two"}, log)
}

func TestSpawnDuplicatePanics(t *testing.T) {
	sys := NewSystem()
	sys.Spawn("dup", func(Message) {})
	assert.Panics(t, func() { sys.Spawn("dup", func(Message) {}) })
}

func TestLookupAndRemove(t *testing.T) {
	sys := NewSystem()
	sys.Spawn("a", func(Message) {})

	ref, ok := sys.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "a", ref.Address())

	sys.Remove("a")
	_, ok = sys.Lookup("a")
	assert.False(t, ok)

	// Removing an unregistered address is a silent no-op.
	assert.NotPanics(t, func() { sys.Remove("never-existed") })
}

func TestAddressesByPrefix(t *testing.T) {
	sys := NewSystem()
	sys.Spawn("pv_producer1:1", func(Message) {})
	sys.Spawn("producer1:2", func(Message) {})
	sys.Spawn("grid0:0", func(Message) {})

	pv := sys.Addresses("pv_producer")
	assert.ElementsMatch(t, []string{"pv_producer1:1"}, pv)

	all := sys.Addresses("")
	assert.Len(t, all, 3)
}
