// internal/lobby/pending_cache_test.go
package lobby

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets expiry tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func pendingTestLobby(members int) *Lobby {
	l := New(1, uuid.New(), "", nil)
	l.AddMember(l.Data.OwnerID, MemberData{})
	for i := 1; i < members; i++ {
		l.AddMember(uuid.New(), MemberData{})
	}
	return l
}

func TestPendingAckLifecycle(t *testing.T) {
	clock := newFakeClock()
	cache := NewPendingCache(PendingConfig{AckTimeout: 10 * time.Second, StartBuffer: 3 * time.Second}, testLogger(), clock.now)

	l := pendingTestLobby(2)
	require.NoError(t, cache.AddLobby(l))
	assert.Error(t, cache.AddLobby(l), "duplicate pending lobby must be rejected")

	_, ok := cache.TryGetFullAckedLobby(l.ID())
	assert.False(t, ok)

	// non-member cannot ack
	assert.Error(t, cache.AddUserAck(l.ID(), uuid.New()))

	require.NoError(t, cache.AddUserAck(l.ID(), l.Data.Members[0].UserID))
	// double ack rejected
	assert.Error(t, cache.AddUserAck(l.ID(), l.Data.Members[0].UserID))
	_, ok = cache.TryGetFullAckedLobby(l.ID())
	assert.False(t, ok)

	require.NoError(t, cache.AddUserAck(l.ID(), l.Data.Members[1].UserID))
	data, ok := cache.TryGetFullAckedLobby(l.ID())
	require.True(t, ok)
	assert.Equal(t, l.ID(), data.ID)
}

func TestPendingNack(t *testing.T) {
	clock := newFakeClock()
	cache := NewPendingCache(PendingConfig{AckTimeout: 10 * time.Second, StartBuffer: 3 * time.Second}, testLogger(), clock.now)

	l := pendingTestLobby(2)
	require.NoError(t, cache.AddLobby(l))

	_, err := cache.RemoveNackedLobby(l.ID(), uuid.New())
	assert.Error(t, err, "non-member cannot nack")

	got, err := cache.RemoveNackedLobby(l.ID(), l.Data.Members[1].UserID)
	require.NoError(t, err)
	assert.Equal(t, l.ID(), got.ID())
	assert.False(t, cache.HasPendingLobby(l.ID()))
}

func TestPendingExpiryAckTimeout(t *testing.T) {
	clock := newFakeClock()
	cache := NewPendingCache(PendingConfig{AckTimeout: 10 * time.Second, StartBuffer: 3 * time.Second}, testLogger(), clock.now)

	unacked := pendingTestLobby(2)
	acked := pendingTestLobby(1)
	acked.Data.ID = 2
	require.NoError(t, cache.AddLobby(unacked))
	require.NoError(t, cache.AddLobby(acked))
	require.NoError(t, cache.AddUserAck(acked.ID(), acked.Data.OwnerID))

	// inside the ack window nothing expires
	clock.advance(10 * time.Second)
	assert.Empty(t, cache.DrainExpired())

	// past the ack window only the unacked lobby expires
	clock.advance(time.Millisecond)
	expired := cache.DrainExpired()
	require.Len(t, expired, 1)
	assert.Equal(t, unacked.ID(), expired[0].ID())
	assert.True(t, cache.HasPendingLobby(acked.ID()))

	// past ack timeout + start buffer the fully-acked lobby goes too
	clock.advance(3 * time.Second)
	expired = cache.DrainExpired()
	require.Len(t, expired, 1)
	assert.Equal(t, acked.ID(), expired[0].ID())
	assert.Equal(t, 0, cache.NumPending())
}

func TestAckSetIsSubsetOfMembers(t *testing.T) {
	clock := newFakeClock()
	cache := NewPendingCache(PendingConfig{AckTimeout: time.Minute, StartBuffer: time.Second}, testLogger(), clock.now)

	l := pendingTestLobby(3)
	require.NoError(t, cache.AddLobby(l))

	for _, m := range l.Data.Members {
		require.NoError(t, cache.AddUserAck(l.ID(), m.UserID))
	}
	_, ok := cache.TryGetFullAckedLobby(l.ID())
	assert.True(t, ok)
}
