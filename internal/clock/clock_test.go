package clock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cossmic/internal/id"
)

func TestFixedMonotone(t *testing.T) {
	f := NewFixed(100)
	assert.Equal(t, id.Time(100), f.Now())
	f.Advance(10)
	assert.Equal(t, id.Time(110), f.Now())
	f.Set(200)
	assert.Equal(t, id.Time(200), f.Now())

	assert.Panics(t, func() { f.Advance(-1) })
	assert.Panics(t, func() { f.Set(50) })
}

func TestInjected(t *testing.T) {
	var val id.Time = 42
	c := Injected(func() id.Time { return val })
	assert.Equal(t, id.Time(42), c.Now())
	val = 43
	assert.Equal(t, id.Time(43), c.Now())
}

func TestSimulatorPollsAndCaches(t *testing.T) {
	current := int64(1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int64{"unix_seconds": current})
	}))
	defer srv.Close()

	c, err := NewSimulator(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, id.Time(1000), c.Now())

	current = 2000
	require.NoError(t, c.Poll(context.Background()))
	assert.Equal(t, id.Time(2000), c.Now())

	// A regression from the endpoint must never move Now() backwards.
	current = 500
	require.NoError(t, c.Poll(context.Background()))
	assert.Equal(t, id.Time(2000), c.Now())
}

func TestSystemClockMonotone(t *testing.T) {
	var s System
	a := s.Now()
	b := s.Now()
	assert.True(t, b >= a)
}
