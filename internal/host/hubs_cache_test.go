// internal/host/hubs_cache_test.go
package host

import (
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// checkIndexAgreement verifies the ordered index matches a recomputed view
// of every hub's estimated capacity.
func checkIndexAgreement(t *testing.T, c *GameHubsCache) {
	t.Helper()
	require.Len(t, c.sorted, len(c.hubs), "index entry count must match hub count")
	for _, entry := range c.sorted {
		state, ok := c.hubs[entry.id]
		require.True(t, ok, "index references unknown hub")
		assert.Equal(t, state.estimatedCapacity(), entry.estimated, "index disagrees with recomputed capacity")
	}
	for i := 1; i < len(c.sorted); i++ {
		assert.True(t, c.sorted[i-1].less(c.sorted[i]), "index must be strictly ordered")
	}
}

func TestHubRegistration(t *testing.T) {
	cache := NewGameHubsCache(testLogger())
	hub := uuid.New()

	require.NoError(t, cache.InsertHub(hub))
	assert.Error(t, cache.InsertHub(hub), "duplicate hub must be rejected")
	assert.True(t, cache.HasHub(hub))
	assert.Equal(t, 1, cache.NumHubs())
	checkIndexAgreement(t, cache)

	// fresh hubs start at capacity zero and are not selectable
	_, ok := cache.HighestCapacityHub()
	assert.False(t, ok)

	require.NoError(t, cache.RemoveHub(hub))
	assert.False(t, cache.HasHub(hub))
	assert.Error(t, cache.RemoveHub(hub))
	checkIndexAgreement(t, cache)
}

func TestEstimatedCapacityTracksPending(t *testing.T) {
	cache := NewGameHubsCache(testLogger())
	hub := uuid.New()
	require.NoError(t, cache.InsertHub(hub))
	require.NoError(t, cache.SetCapacity(hub, 2))
	checkIndexAgreement(t, cache)

	est, _ := cache.EstimatedCapacity(hub)
	assert.Equal(t, int32(2), est)

	require.NoError(t, cache.AddPendingGame(hub, 1))
	est, _ = cache.EstimatedCapacity(hub)
	assert.Equal(t, int32(1), est)
	checkIndexAgreement(t, cache)

	// duplicate pending and pending-vs-running collisions are rejected
	assert.Error(t, cache.AddPendingGame(hub, 1))

	require.NoError(t, cache.UpgradePendingGame(hub, 1))
	assert.True(t, cache.HasGame(hub, 1))
	assert.False(t, cache.HasPendingGame(hub, 1))
	assert.Error(t, cache.AddPendingGame(hub, 1), "running game id cannot be re-reserved")
	checkIndexAgreement(t, cache)

	// upgrading frees the pending slot but the game still occupies the hub
	est, _ = cache.EstimatedCapacity(hub)
	assert.Equal(t, int32(2), est)

	require.NoError(t, cache.RemoveGame(hub, 1))
	assert.False(t, cache.HasGame(hub, 1))
	checkIndexAgreement(t, cache)
}

func TestSelectorPicksGreatestEstimatedCapacity(t *testing.T) {
	cache := NewGameHubsCache(testLogger())
	hubA := uuid.New()
	hubB := uuid.New()
	require.NoError(t, cache.InsertHub(hubA))
	require.NoError(t, cache.InsertHub(hubB))
	require.NoError(t, cache.SetCapacity(hubA, 1))
	require.NoError(t, cache.SetCapacity(hubB, 3))
	checkIndexAgreement(t, cache)

	selected, ok := cache.HighestCapacityHub()
	require.True(t, ok)
	assert.Equal(t, hubB, selected)

	// load hubB down to parity and below
	require.NoError(t, cache.AddPendingGame(hubB, 1))
	require.NoError(t, cache.AddPendingGame(hubB, 2))
	checkIndexAgreement(t, cache)

	// both at estimated 1: tie breaks deterministically by hub id
	selected, ok = cache.HighestCapacityHub()
	require.True(t, ok)
	expected := hubA
	if sortableHubLess(hubA, hubB) {
		expected = hubB
	}
	assert.Equal(t, expected, selected)

	// exhaust both
	require.NoError(t, cache.AddPendingGame(hubB, 3))
	require.NoError(t, cache.AddPendingGame(hubA, 4))
	_, ok = cache.HighestCapacityHub()
	assert.False(t, ok, "selector must never return a hub with estimated capacity <= 0")
	checkIndexAgreement(t, cache)
}

// sortableHubLess mirrors the index tie-break for test expectations.
func sortableHubLess(a, b uuid.UUID) bool {
	return sortableHub{estimated: 0, id: a}.less(sortableHub{estimated: 0, id: b})
}

func TestDrainGames(t *testing.T) {
	cache := NewGameHubsCache(testLogger())
	hub := uuid.New()
	require.NoError(t, cache.InsertHub(hub))
	require.NoError(t, cache.SetCapacity(hub, 5))

	for _, gameID := range []uint64{3, 1, 2} {
		require.NoError(t, cache.AddPendingGame(hub, gameID))
		require.NoError(t, cache.UpgradePendingGame(hub, gameID))
	}

	games, err := cache.DrainGames(hub)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, games)

	games, err = cache.DrainGames(hub)
	require.NoError(t, err)
	assert.Empty(t, games)
	checkIndexAgreement(t, cache)
}
