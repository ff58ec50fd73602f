package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackIDSetScan(t *testing.T) {
	var s TrackIDSet
	require.NoError(t, s.Scan([]byte(`["a","b"]`)))
	assert.True(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.False(t, s.Contains("c"))

	// Legacy NULL columns read as an empty set, not an error.
	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)

	require.NoError(t, s.Scan("null"))
	assert.Empty(t, s)

	require.NoError(t, s.Scan(`["x"]`))
	assert.True(t, s.Contains("x"))
}

func TestTrackIDSetValueNeverNull(t *testing.T) {
	var s TrackIDSet
	v, err := s.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	s = TrackIDSet{"a"}
	v, err = s.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `["a"]`, string(v.([]byte)))
}
