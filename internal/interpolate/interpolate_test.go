package interpolate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cossmic/internal/id"
)

func TestAtLinearInterpolation(t *testing.T) {
	f, err := New([]Point{{T: 0, Value: 0}, {T: 100, Value: 100}, {T: 200, Value: 100}})
	require.NoError(t, err)

	assert.Equal(t, 0.0, f.At(0))
	assert.Equal(t, 50.0, f.At(50))
	assert.Equal(t, 100.0, f.At(100))
	assert.Equal(t, 100.0, f.At(150))
	// Clamped below/above domain.
	assert.Equal(t, 0.0, f.At(-50))
	assert.Equal(t, 100.0, f.At(300))
}

func TestMonotoneNonDecreasing(t *testing.T) {
	f, err := New([]Point{{T: 0, Value: 0}, {T: 10, Value: 5}, {T: 20, Value: 5}, {T: 30, Value: 12}})
	require.NoError(t, err)
	var prev float64 = -1
	for tt := id.Time(0); tt <= 30; tt++ {
		v := f.At(tt)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestIntegratePreservesAbscissae(t *testing.T) {
	f, err := New([]Point{{T: 0, Value: 0}, {T: 10, Value: 10}, {T: 20, Value: 10}})
	require.NoError(t, err)
	q := f.Integrate()
	assert.Equal(t, f.Abscissae(), q.Abscissae())
	assert.Equal(t, 0.0, q.At(0))
	// area of ramp 0->10 over [0,10] = 50, then flat 10 over [10,20] = +100
	assert.InDelta(t, 50.0, q.At(10), 1e-9)
	assert.InDelta(t, 150.0, q.At(20), 1e-9)
}

func TestContributionClipsToDomain(t *testing.T) {
	p, err := New([]Point{{T: 0, Value: 0}, {T: 100, Value: 100}})
	require.NoError(t, err)
	q := p.Integrate()

	// Entirely within domain.
	c := Contribution(p, q, id.TimeInterval{Lo: 0, Hi: 100})
	assert.InDelta(t, p.At(0)*100-(q.At(100)-q.At(0)), c, 1e-9)

	// Entirely outside domain (above hi): both terms cancel to zero.
	c2 := Contribution(p, q, id.TimeInterval{Lo: 200, Hi: 300})
	assert.InDelta(t, 0, c2, 1e-9)
}

func TestDeduplicatesAbscissae(t *testing.T) {
	f, err := New([]Point{{T: 0, Value: 0}, {T: 10, Value: 1}, {T: 10, Value: 2}})
	require.NoError(t, err)
	assert.Len(t, f.Abscissae(), 2)
	assert.Equal(t, 2.0, f.At(10))
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
