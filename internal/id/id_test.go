package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []ID{
		New(1, 2),
		NewWithMode(1, 2, 3),
		Grid,
	}
	for _, c := range cases {
		parsed, err := Parse(c.String())
		require.NoError(t, err)
		assert.True(t, c.Equal(parsed), "round trip mismatch for %s", c.String())
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = Parse("1")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = Parse("a:b")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = Parse("1:2:3:4")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestValid(t *testing.T) {
	assert.False(t, ID{}.Valid())
	assert.True(t, New(0, 0).Valid())
	assert.True(t, Grid.Valid())
}

func TestCompareOrdering(t *testing.T) {
	a := New(1, 2)
	b := NewWithMode(1, 2, 0)
	assert.Equal(t, -1, a.Compare(b), "none should sort before some")
	assert.Equal(t, 1, b.Compare(a))

	c := New(1, 3)
	assert.Equal(t, -1, a.Compare(c))

	d := New(2, 0)
	assert.Equal(t, -1, a.Compare(d))
}

func TestClassifyAddress(t *testing.T) {
	assert.Equal(t, KindActorManager, ClassifyAddress(AddressActorManager))
	assert.Equal(t, KindPVProducer, ClassifyAddress(PVProducerAddress(New(1, 1))))
	assert.Equal(t, KindProducer, ClassifyAddress(ProducerAddress(New(1, 1))))
	assert.Equal(t, KindConsumer, ClassifyAddress(ConsumerAddress(NewWithMode(1, 1, 0))))
	assert.Equal(t, KindGrid, ClassifyAddress(GridAddress(Grid)))
	assert.Equal(t, KindRewardCalculator, ClassifyAddress(RewardCalculatorAddress("home")))
	assert.Equal(t, KindUnknown, ClassifyAddress("whatever"))
}

func TestIntervalOps(t *testing.T) {
	a := NewInterval(10, 20)
	b := NewInterval(15, 30)
	c := NewInterval(100, 200)

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))

	inter, ok := a.Intersect(b)
	require.True(t, ok)
	assert.Equal(t, TimeInterval{Lo: 15, Hi: 20}, inter)

	_, ok = a.Intersect(c)
	assert.False(t, ok)

	hull := a.Hull(b)
	assert.Equal(t, TimeInterval{Lo: 10, Hi: 30}, hull)

	assert.Equal(t, Time(10), a.Width())
	assert.True(t, a.Contains(10))
	assert.True(t, a.Contains(20))
	assert.False(t, a.Contains(21))
}
