package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializer_RoundTrip(t *testing.T) {
	s := JSON(newTraceRegistry())

	in := trace{ID: "t-1", Log: []string{"created", "alpha"}}
	data, err := s.Serialize(in)
	require.NoError(t, err)

	out, err := s.Deserialize(traceClass, data)
	require.NoError(t, err)

	// Deserialize yields the concrete value, not a pointer.
	got, ok := out.(trace)
	require.True(t, ok, "expected trace, got %T", out)
	assert.Equal(t, in, got)
}

func TestJSONSerializer_UnknownName(t *testing.T) {
	s := JSON(newTraceRegistry())

	_, err := s.Deserialize("test.Nope", []byte(`{}`))
	assert.True(t, IsSerialization(err), "got %v", err)
}

func TestJSONSerializer_MalformedBytes(t *testing.T) {
	s := JSON(newTraceRegistry())

	_, err := s.Deserialize(traceClass, []byte(`{not json`))
	assert.True(t, IsSerialization(err), "got %v", err)
}
