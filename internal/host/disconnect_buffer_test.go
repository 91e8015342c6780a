// internal/host/disconnect_buffer_test.go
package host

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectBufferLifecycle(t *testing.T) {
	clock := newFakeClock()
	buffer := NewDisconnectBuffer(DisconnectBufferConfig{ExpiryDuration: 5 * time.Second}, testLogger(), clock.now)

	hub := uuid.New()
	require.NoError(t, buffer.AddHub(hub))
	assert.Error(t, buffer.AddHub(hub), "double-buffering a hub must fail")
	assert.True(t, buffer.HasHub(hub))
	assert.Equal(t, 1, buffer.NumBuffered())

	// a reconnect inside the TTL removes the entry
	require.NoError(t, buffer.RemoveHub(hub))
	assert.False(t, buffer.HasHub(hub))
	assert.Error(t, buffer.RemoveHub(hub))
}

func TestDisconnectBufferExpiry(t *testing.T) {
	clock := newFakeClock()
	buffer := NewDisconnectBuffer(DisconnectBufferConfig{ExpiryDuration: 5 * time.Second}, testLogger(), clock.now)

	early := uuid.New()
	require.NoError(t, buffer.AddHub(early))

	clock.advance(3 * time.Second)
	late := uuid.New()
	require.NoError(t, buffer.AddHub(late))

	// at exactly the TTL nothing expires
	clock.advance(2 * time.Second)
	assert.Empty(t, buffer.DrainExpired())

	clock.advance(time.Millisecond)
	expired := buffer.DrainExpired()
	require.Len(t, expired, 1)
	assert.Equal(t, early, expired[0])
	assert.True(t, buffer.HasHub(late))
}
