package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmptyMap(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	got, err := s.Load("1:2")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	probs := map[string]float64{
		"0:0": 0.123456789012345,
		"1:1": 0.5,
	}
	require.NoError(t, s.Save("2:3", probs))

	got, err := s.Load("2:3")
	require.NoError(t, err)
	assert.InDelta(t, probs["0:0"], got["0:0"], 1e-12)
	assert.InDelta(t, probs["1:1"], got["1:1"], 1e-12)
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "Probabilities")
	_, err := New(dir)
	require.NoError(t, err)

	s2, err := New(dir)
	require.NoError(t, err)
	_, err = s2.Load("x")
	require.NoError(t, err)
}

func TestSaveOverwritesExistingFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save("a", map[string]float64{"p": 1.0}))
	require.NoError(t, s.Save("a", map[string]float64{"q": 2.0}))

	got, err := s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"q": 2.0}, got)
}
