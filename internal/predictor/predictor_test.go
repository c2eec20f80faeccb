package predictor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cossmic/internal/actor"
	"cossmic/internal/clock"
	"cossmic/internal/id"
	"cossmic/internal/ingest"
	"cossmic/internal/wire"
)

func newTestPredictor(t *testing.T, now id.Time) (*actor.System, actor.Ref) {
	t.Helper()
	sys := actor.NewSystem()
	clk := clock.NewFixed(now)
	ref := Spawn(sys, "prediction1:1", "pv_producer1:1", clk, false)
	return sys, ref
}

func TestComputeContributionBeforeAnyUpdateIsZero(t *testing.T) {
	sys, ref := newTestPredictor(t, 0)
	_ = sys

	reply := make(chan float64, 1)
	ref.Send("test", ComputeContribution{Interval: id.TimeInterval{Lo: 0, Hi: 10}, ReplyTo: reply})

	select {
	case v := <-reply:
		assert.Equal(t, 0.0, v)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestFindEnergyEqualityTimeBeforeAnyUpdateIsNotOk(t *testing.T) {
	_, ref := newTestPredictor(t, 0)

	reply := make(chan EnergyEqualityResult, 1)
	ref.Send("test", FindEnergyEqualityTime{TotalEnergy: 10, ReplyTo: reply})

	select {
	case r := <-reply:
		assert.False(t, r.Ok)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestInstallPredictionThenComputeContribution(t *testing.T) {
	p := &Predictor{system: actor.NewSystem(), clock: clock.NewFixed(0), origin: id.Time(1<<63 - 1)}
	p.installPrediction([]ingest.Sample{
		{Time: 0, Energy: 0},
		{Time: 100, Energy: 10},
		{Time: 200, Energy: 30},
	})

	require.NotNil(t, p.p)
	assert.Equal(t, 0.0, p.p.At(0))
	assert.InDelta(t, 30.0, p.p.At(200), 1e-9)

	// P(0)*200 - (Q(200) - Q(0)) = 0 - (500 + 2000) = -2500.
	reply := make(chan float64, 1)
	p.computeContribution(ComputeContribution{Interval: id.TimeInterval{Lo: 0, Hi: 200}, ReplyTo: reply})
	assert.InDelta(t, -2500.0, <-reply, 1e-9)
}

func TestInstallPredictionRebasesNonZeroStart(t *testing.T) {
	p := &Predictor{system: actor.NewSystem(), clock: clock.NewFixed(0), origin: id.Time(1<<63 - 1)}
	p.installPrediction([]ingest.Sample{
		{Time: 0, Energy: 5},
		{Time: 100, Energy: 15},
	})

	assert.InDelta(t, 0.0, p.p.At(0), 1e-9)
	assert.InDelta(t, 10.0, p.p.At(100), 1e-9)
}

func TestInstallPredictionIsContinuousWithPrevious(t *testing.T) {
	p := &Predictor{system: actor.NewSystem(), clock: clock.NewFixed(0), origin: id.Time(1<<63 - 1)}
	p.installPrediction([]ingest.Sample{{Time: 0, Energy: 0}, {Time: 100, Energy: 10}})

	p.installPrediction([]ingest.Sample{{Time: 100, Energy: 0}, {Time: 200, Energy: 5}})

	assert.InDelta(t, 10.0, p.p.At(100), 1e-9)
	assert.InDelta(t, 15.0, p.p.At(200), 1e-9)
}

func TestInstallPredictionPadsHistoryWhenOriginPredatesSeries(t *testing.T) {
	p := &Predictor{system: actor.NewSystem(), clock: clock.NewFixed(0), origin: id.Time(1<<63 - 1)}
	p.installPrediction([]ingest.Sample{{Time: 0, Energy: 0}, {Time: 100, Energy: 10}, {Time: 200, Energy: 20}})

	p.origin = 50 // history must be preserved back to t=50

	p.installPrediction([]ingest.Sample{{Time: 200, Energy: 0}, {Time: 300, Energy: 10}, {Time: 400, Energy: 20}})

	dom := p.p.Domain()
	assert.LessOrEqual(t, dom.Lo, id.Time(100))
}

func TestQueryDomainBeforeAnyUpdateIsNotOk(t *testing.T) {
	_, ref := newTestPredictor(t, 0)

	reply := make(chan DomainResult, 1)
	ref.Send("test", QueryDomain{ReplyTo: reply})

	select {
	case r := <-reply:
		assert.False(t, r.Ok)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestQueryDomainAfterInstallReturnsSeriesDomain(t *testing.T) {
	sys := actor.NewSystem()
	p := &Predictor{system: sys, address: "prediction1:1", clock: clock.NewFixed(0), origin: id.Time(1<<63 - 1)}
	p.installPrediction([]ingest.Sample{{Time: 0, Energy: 0}, {Time: 100, Energy: 10}})
	ref := sys.Spawn("prediction1:1-test", p.handle)

	reply := make(chan DomainResult, 1)
	ref.Send("test", QueryDomain{ReplyTo: reply})
	select {
	case r := <-reply:
		assert.True(t, r.Ok)
		assert.Equal(t, id.Time(0), r.Domain.Lo)
		assert.Equal(t, id.Time(100), r.Domain.Hi)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestUpdateSendsTriggerScheduleToProducer(t *testing.T) {
	sys := actor.NewSystem()
	received := make(chan wire.Schedule, 1)
	sys.Spawn("pv_producer1:1", func(msg actor.Message) {
		if s, ok := msg.Payload.(wire.Schedule); ok {
			received <- s
		}
	})

	clk := clock.NewFixed(0)
	p := &Predictor{system: sys, address: "prediction1:1", producer: "pv_producer1:1", clock: clk, origin: id.Time(1<<63 - 1)}
	p.installPrediction([]ingest.Sample{{Time: 0, Energy: 0}, {Time: 100, Energy: 10}})

	select {
	case s := <-received:
		assert.True(t, s.IsTrigger())
		assert.Equal(t, id.Time(0), s.EST)
		assert.Equal(t, id.Time(100), s.LST)
	case <-time.After(time.Second):
		t.Fatal("producer did not receive trigger schedule")
	}
}
