package ids

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixkernel/kernel/pkg/kerr"
)

func TestNewIsTimeOrdered(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Negative(t, bytes.Compare(prev[:], next[:]))
		prev = next
	}
}

func TestBytesRoundTrip(t *testing.T) {
	id := New()
	got, err := FromBytes(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	assert.True(t, kerr.Is(err, kerr.InvalidKey))
}

func TestParseRoundTrip(t *testing.T) {
	id := New()
	got, err := Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = Parse("not-a-uuid")
	assert.True(t, kerr.Is(err, kerr.InvalidKey))
}

func TestZero(t *testing.T) {
	assert.True(t, Zero.IsZero())
	assert.False(t, New().IsZero())
}
