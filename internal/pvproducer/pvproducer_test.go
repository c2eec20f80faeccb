package pvproducer

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cossmic/internal/actor"
	"cossmic/internal/clock"
	"cossmic/internal/config"
	"cossmic/internal/id"
	"cossmic/internal/predictor"
	"cossmic/internal/transport"
	"cossmic/internal/wire"
)

func writeProfile(t *testing.T, rows [][2]int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.csv")
	var buf string
	for _, r := range rows {
		buf += strconv.FormatInt(r[0], 10) + "," + strconv.FormatInt(r[1], 10) + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(buf), 0o644))
	return path
}

func newTestPV(t *testing.T, now id.Time, profile [][2]int64) (*actor.System, *PVProducer, actor.Ref) {
	t.Helper()
	sys := actor.NewSystem()
	tr := transport.NewLocal(sys)
	clk := clock.NewFixed(now)

	predRef := predictor.Spawn(sys, "prediction1:1", "pv_producer1:1", clk, false)

	pv, ref := Spawn(sys, "pv_producer1:1", "prediction1:1", tr, clk, config.Default())

	if profile != nil {
		path := writeProfile(t, profile)
		done := make(chan struct{})
		sys.Spawn("test-sync:1", func(actor.Message) { close(done) })
		predRef.Send("test", predictor.UpdatePredictionFromFile{File: path})
		// Drain: send a trivial message through the predictor's mailbox
		// after the update to know it has been processed (FIFO per
		// sender/receiver), since the update itself has no direct ack.
		reply := make(chan predictor.DomainResult, 1)
		predRef.Send("test", predictor.QueryDomain{ReplyTo: reply})
		select {
		case <-reply:
		case <-time.After(time.Second):
			t.Fatal("predictor never processed the profile update")
		}
	}

	return sys, pv, ref
}

func TestSingleConsumerGetsEarliestFeasibleStart(t *testing.T) {
	sys, _, ref := newTestPV(t, 0, [][2]int64{{0, 0}, {1000, 100}})

	reply := make(chan string, 1)
	sys.Spawn("consumer1:1", func(msg actor.Message) {
		if s, ok := msg.Payload.(string); ok {
			reply <- s
		}
	})

	ref.Send("consumer1:1", wire.Schedule{EST: 0, LST: 1000, Duration: 10, Energy: 50}.Encode())

	select {
	case body := <-reply:
		env, err := wire.Split(body)
		require.NoError(t, err)
		assert.Equal(t, wire.TagAssignedStartTime, env.Tag)
		ast, err := wire.DecodeAssignedStartTime(env.Body)
		require.NoError(t, err)
		if ast.Set {
			assert.GreaterOrEqual(t, int64(ast.Time), int64(0))
			assert.LessOrEqual(t, int64(ast.Time), int64(1000))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
}

func TestNoPredictionYetLeavesScheduleUnanswered(t *testing.T) {
	_, pv, ref := newTestPV(t, 0, nil)

	ref.Send("consumer1:1", wire.Schedule{EST: 0, LST: 100, Duration: 10, Energy: 5}.Encode())
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, pv.prod.Arena().Len())
}

func TestKillProxyReassignsEarliestStartingConsumer(t *testing.T) {
	_, pv, ref := newTestPV(t, 0, [][2]int64{{0, 0}, {1000, 100}})

	ref.Send("consumer1:1", wire.Schedule{EST: 0, LST: 500, Duration: 10, Energy: 5}.Encode())
	time.Sleep(20 * time.Millisecond)
	ref.Send("consumer2:1", wire.Schedule{EST: 0, LST: 500, Duration: 10, Energy: 5}.Encode())
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 2, pv.prod.Arena().Len())

	// Whichever of the two was earliest, once consumer1 is gone the
	// reference must name consumer2, the only proxy left.
	ref.Send("consumer1:1", wire.EncodeBodyless(wire.TagKillProxy))
	require.Eventually(t, func() bool { return pv.prod.Arena().Len() == 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		return pv.hasEarliest && pv.earliestStartingConsumer == "consumer2:1"
	}, time.Second, time.Millisecond)
}
