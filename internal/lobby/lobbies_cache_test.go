// internal/lobby/lobbies_cache_test.go
package lobby

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

func newTestCache(maxRequest uint16) *Cache {
	return NewCache(CacheConfig{
		MaxRequestSize: maxRequest,
		Checker:        BasicChecker{MaxMembers: 4, MinPlayersToLaunch: 2},
	}, testLogger())
}

func TestNewLobbyAddsOwnerAsMember(t *testing.T) {
	cache := newTestCache(10)
	owner := uuid.New()

	id, err := cache.NewLobby(owner, MemberData{}, "pw", []byte("custom"))
	require.NoError(t, err)

	l, ok := cache.Lobby(id)
	require.True(t, ok)
	assert.True(t, l.IsOwner(owner))
	assert.True(t, l.HasMember(owner))
	assert.Equal(t, 1, l.NumMembers())
	assert.Equal(t, []byte("custom"), l.Data.CustomData)
}

func TestLobbyIDsAreMonotonic(t *testing.T) {
	cache := newTestCache(10)

	var prev uint64
	for i := 0; i < 5; i++ {
		id, err := cache.NewLobby(uuid.New(), MemberData{}, "", nil)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestNewLobbySkipsOccupiedIDs(t *testing.T) {
	cache := newTestCache(10)

	first, err := cache.NewLobby(uuid.New(), MemberData{}, "", nil)
	require.NoError(t, err)

	// park a foreign lobby on the id the counter would hand out next
	squatter := New(first+1, uuid.New(), "", nil)
	squatter.AddMember(squatter.Data.OwnerID, MemberData{})
	require.NoError(t, cache.InsertLobby(squatter))

	next, err := cache.NewLobby(uuid.New(), MemberData{}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, first+2, next)
}

func TestTryAddMemberChecksPassword(t *testing.T) {
	cache := newTestCache(10)
	owner := uuid.New()
	id, err := cache.NewLobby(owner, MemberData{}, "secret", nil)
	require.NoError(t, err)

	joiner := uuid.New()
	assert.False(t, cache.TryAddMember(id, joiner, MemberData{}, "wrong"))
	assert.True(t, cache.TryAddMember(id, joiner, MemberData{}, "secret"))
	// duplicate join is rejected
	assert.False(t, cache.TryAddMember(id, joiner, MemberData{}, "secret"))

	l, _ := cache.Lobby(id)
	assert.Equal(t, 2, l.NumMembers())
}

func TestTryAddMemberRespectsCap(t *testing.T) {
	cache := newTestCache(10)
	id, err := cache.NewLobby(uuid.New(), MemberData{}, "", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, cache.TryAddMember(id, uuid.New(), MemberData{}, ""))
	}
	assert.False(t, cache.TryAddMember(id, uuid.New(), MemberData{}, ""), "5th member exceeds cap of 4")
}

func TestExtractAndReinsert(t *testing.T) {
	cache := newTestCache(10)
	id, err := cache.NewLobby(uuid.New(), MemberData{}, "", nil)
	require.NoError(t, err)

	l, ok := cache.ExtractLobby(id)
	require.True(t, ok)
	_, ok = cache.Lobby(id)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.NumLobbies())

	require.NoError(t, cache.InsertLobby(l))
	_, ok = cache.Lobby(id)
	assert.True(t, ok)

	// same id cannot be inserted twice
	assert.Error(t, cache.InsertLobby(l))
}

func makeLobbies(t *testing.T, cache *Cache, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		id, err := cache.NewLobby(uuid.New(), MemberData{}, "", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestSearchByLobbyID(t *testing.T) {
	cache := newTestCache(10)
	ids := makeLobbies(t, cache, 5)

	res := cache.Search(SearchRequest{LobbyID: &ids[2]})
	require.Len(t, res.Lobbies, 1)
	assert.Equal(t, ids[2], res.Lobbies[0].ID)
	assert.Equal(t, 2, res.NumYounger)
	assert.Equal(t, 5, res.Total)

	missing := ids[4] + 100
	res = cache.Search(SearchRequest{LobbyID: &missing})
	assert.Empty(t, res.Lobbies)
	assert.Equal(t, 0, res.NumYounger)
	assert.Equal(t, 5, res.Total)
}

func TestSearchPageOlder(t *testing.T) {
	cache := newTestCache(10)
	ids := makeLobbies(t, cache, 6)

	// newest page from the top
	res := cache.Search(SearchRequest{PageOlder: &PageOlder{YoungestID: ^uint64(0), Num: 3}})
	require.Len(t, res.Lobbies, 3)
	assert.Equal(t, ids[5], res.Lobbies[0].ID)
	assert.Equal(t, ids[4], res.Lobbies[1].ID)
	assert.Equal(t, ids[3], res.Lobbies[2].ID)
	assert.Equal(t, 0, res.NumYounger)

	// continue from the oldest seen
	res = cache.Search(SearchRequest{PageOlder: &PageOlder{YoungestID: ids[2], Num: 3}})
	require.Len(t, res.Lobbies, 3)
	assert.Equal(t, ids[2], res.Lobbies[0].ID)
	assert.Equal(t, ids[0], res.Lobbies[2].ID)
	assert.Equal(t, 3, res.NumYounger)
}

func TestSearchPageNewer(t *testing.T) {
	cache := newTestCache(10)
	ids := makeLobbies(t, cache, 6)

	res := cache.Search(SearchRequest{PageNewer: &PageNewer{OldestID: ids[1], Num: 3}})
	require.Len(t, res.Lobbies, 3)
	// newest-first within the page
	assert.Equal(t, ids[3], res.Lobbies[0].ID)
	assert.Equal(t, ids[2], res.Lobbies[1].ID)
	assert.Equal(t, ids[1], res.Lobbies[2].ID)
	assert.Equal(t, 2, res.NumYounger)
}

func TestSearchClampsPageSize(t *testing.T) {
	cache := newTestCache(2)
	makeLobbies(t, cache, 5)

	res := cache.Search(SearchRequest{PageOlder: &PageOlder{YoungestID: ^uint64(0), Num: 100}})
	assert.Len(t, res.Lobbies, 2)

	res = cache.Search(SearchRequest{PageNewer: &PageNewer{OldestID: 0, Num: 100}})
	assert.Len(t, res.Lobbies, 2)
}

func TestSearchPagesCoverContiguousWindow(t *testing.T) {
	cache := newTestCache(10)
	ids := makeLobbies(t, cache, 8)

	first := cache.Search(SearchRequest{PageOlder: &PageOlder{YoungestID: ^uint64(0), Num: 4}})
	require.Len(t, first.Lobbies, 4)
	oldestSeen := first.Lobbies[len(first.Lobbies)-1].ID

	second := cache.Search(SearchRequest{PageNewer: &PageNewer{OldestID: oldestSeen, Num: 4}})
	require.Len(t, second.Lobbies, 4)

	// the newer page re-anchors at oldestSeen inclusively, so with 8 lobbies
	// it returns the same window as the first page: ids[4..7]
	assert.Equal(t, oldestSeen, second.Lobbies[len(second.Lobbies)-1].ID)
	assert.Equal(t, ids[7], second.Lobbies[0].ID)
}

func TestCheckerRejectionsPropagate(t *testing.T) {
	cache := NewCache(CacheConfig{
		MaxRequestSize: 10,
		Checker:        BasicChecker{MaxMembers: 0, MinPlayersToLaunch: 2},
	}, testLogger())

	_, err := cache.NewLobby(uuid.New(), MemberData{}, "", nil)
	assert.ErrorIs(t, err, ErrLobbyRejected)
	assert.Equal(t, 0, cache.NumLobbies())
}
