// internal/lobby/lobbies_cache.go
package lobby

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SearchRequest selects a page of open lobbies. Exactly one of the three
// shapes is used per request.
type SearchRequest struct {
	// LobbyID requests a single lobby by id.
	LobbyID *uint64 `json:"lobby_id,omitempty"`
	// PageNewer requests up to Num lobbies with id >= OldestID.
	PageNewer *PageNewer `json:"page_newer,omitempty"`
	// PageOlder requests up to Num lobbies with id <= YoungestID.
	PageOlder *PageOlder `json:"page_older,omitempty"`
}

// PageNewer pages from an anchor toward newer lobbies.
type PageNewer struct {
	OldestID uint64 `json:"oldest_id"`
	Num      uint16 `json:"num"`
}

// PageOlder pages from an anchor toward older lobbies.
type PageOlder struct {
	YoungestID uint64 `json:"youngest_id"`
	Num        uint16 `json:"num"`
}

// SearchResult is a page of lobbies sorted newest-first, with enough
// counters for the client to paginate.
type SearchResult struct {
	Req        SearchRequest `json:"req"`
	Lobbies    []Data        `json:"lobbies"`
	NumYounger int           `json:"num_younger"`
	Total      int           `json:"total"`
}

// CacheConfig configures the lobbies cache.
type CacheConfig struct {
	// MaxRequestSize clamps the page size of search requests.
	MaxRequestSize uint16
	// Checker validates new/inserted lobbies and new members.
	Checker Checker
}

// ErrLobbyRejected is returned when the checker rejects a lobby or member.
var ErrLobbyRejected = errors.New("lobby rejected by checker")

// Cache holds the open lobbies, keyed by monotonically increasing id so a
// lobby's id doubles as its age rank.
type Cache struct {
	config CacheConfig
	log    *logrus.Logger

	// number of ids generated so far; new lobbies probe upward from here
	generatedCount uint64
	lobbies        map[uint64]*Lobby
	// lobby ids sorted ascending, maintained on every insert/remove
	sortedIDs []uint64
}

// NewCache makes an empty lobbies cache. The cache is owned by the host tick
// loop and is not safe for concurrent use.
func NewCache(config CacheConfig, log *logrus.Logger) *Cache {
	return &Cache{
		config:  config,
		log:     log,
		lobbies: make(map[uint64]*Lobby),
	}
}

// NewLobby builds a candidate lobby, validates it and its owner through the
// checker, and stores it under the next unused id.
func (c *Cache) NewLobby(ownerID uuid.UUID, ownerData MemberData, password string, customData []byte) (uint64, error) {
	c.generatedCount++
	lobbyID := c.generatedCount

	l := New(lobbyID, ownerID, password, customData)

	if !c.config.Checker.CheckLobby(l) {
		return 0, ErrLobbyRejected
	}
	if !c.config.Checker.AllowNewMember(l, ownerID, ownerData, password) {
		return 0, ErrLobbyRejected
	}
	l.AddMember(ownerID, ownerData)

	// generatedCount is not assumed unused: extracted lobbies can be
	// reinserted under arbitrary ids, so probe until an id is free.
	for {
		err := c.InsertLobby(l)
		if err == nil {
			break
		}
		if errors.Is(err, ErrLobbyRejected) {
			return 0, ErrLobbyRejected
		}
		c.generatedCount++
		lobbyID = c.generatedCount
		l.Data.ID = lobbyID
	}
	c.log.WithFields(logrus.Fields{"lobby_id": lobbyID, "owner_id": ownerID}).Trace("created new lobby")
	return lobbyID, nil
}

// InsertLobby stores a previously extracted lobby. Fails if the id is taken
// or the checker rejects the lobby.
func (c *Cache) InsertLobby(l *Lobby) error {
	if !c.config.Checker.CheckLobby(l) {
		return ErrLobbyRejected
	}
	if _, exists := c.lobbies[l.ID()]; exists {
		return errors.New("lobby id already registered")
	}
	c.lobbies[l.ID()] = l
	c.insertSortedID(l.ID())
	return nil
}

// TryAddMember defers to the checker; on accept, appends the member.
func (c *Cache) TryAddMember(lobbyID uint64, userID uuid.UUID, data MemberData, password string) bool {
	l, exists := c.lobbies[lobbyID]
	if !exists {
		return false
	}
	if !c.config.Checker.AllowNewMember(l, userID, data, password) {
		return false
	}
	if !l.AddMember(userID, data) {
		return false
	}
	c.log.WithFields(logrus.Fields{"lobby_id": lobbyID, "user_id": userID}).Trace("added lobby member")
	return true
}

// Lobby returns a lobby if present. The returned pointer stays owned by the
// cache; callers mutate it only from the tick loop.
func (c *Cache) Lobby(lobbyID uint64) (*Lobby, bool) {
	l, ok := c.lobbies[lobbyID]
	return l, ok
}

// ExtractLobby removes and returns a lobby.
func (c *Cache) ExtractLobby(lobbyID uint64) (*Lobby, bool) {
	l, ok := c.lobbies[lobbyID]
	if !ok {
		return nil, false
	}
	delete(c.lobbies, lobbyID)
	c.removeSortedID(lobbyID)
	c.log.WithField("lobby_id", lobbyID).Trace("extracted lobby")
	return l, true
}

// Checker exposes the installed checker for launch validation.
func (c *Cache) Checker() Checker { return c.config.Checker }

// MaxRequestSize returns the configured page-size clamp.
func (c *Cache) MaxRequestSize() uint16 { return c.config.MaxRequestSize }

// NumLobbies returns the number of open lobbies.
func (c *Cache) NumLobbies() int { return len(c.lobbies) }

// Search answers a search request with a page sorted newest-first plus
// pagination counters.
func (c *Cache) Search(req SearchRequest) SearchResult {
	var page []Data
	var numYounger int

	switch {
	case req.LobbyID != nil:
		id := *req.LobbyID
		numYounger = c.countYounger(id)
		if l, ok := c.lobbies[id]; ok {
			page = []Data{l.Data.Clone()}
		}

	case req.PageNewer != nil:
		num := clampNum(req.PageNewer.Num, c.config.MaxRequestSize)
		// walk upward from the anchor, then reverse to newest-first
		start := c.searchIdx(req.PageNewer.OldestID)
		end := start + num
		if end > len(c.sortedIDs) {
			end = len(c.sortedIDs)
		}
		page = c.collect(c.sortedIDs[start:end])
		reverse(page)
		counterID := req.PageNewer.OldestID
		if len(page) > 0 {
			counterID = page[0].ID
		}
		numYounger = c.countYounger(counterID)

	case req.PageOlder != nil:
		num := clampNum(req.PageOlder.Num, c.config.MaxRequestSize)
		// take the window ending at the anchor, then reverse to newest-first
		end := c.searchPastIdx(req.PageOlder.YoungestID)
		start := end - num
		if start < 0 {
			start = 0
		}
		page = c.collect(c.sortedIDs[start:end])
		reverse(page)
		counterID := req.PageOlder.YoungestID
		if len(page) > 0 {
			counterID = page[0].ID
		}
		numYounger = c.countYounger(counterID)
	}

	return SearchResult{
		Req:        req,
		Lobbies:    page,
		NumYounger: numYounger,
		Total:      len(c.lobbies),
	}
}

// searchIdx returns the index of the first sorted id >= id.
func (c *Cache) searchIdx(id uint64) int {
	return sort.Search(len(c.sortedIDs), func(i int) bool { return c.sortedIDs[i] >= id })
}

// searchPastIdx returns the index one past the last sorted id <= id.
func (c *Cache) searchPastIdx(id uint64) int {
	return sort.Search(len(c.sortedIDs), func(i int) bool { return c.sortedIDs[i] > id })
}

// countYounger counts lobbies with id strictly greater than id.
func (c *Cache) countYounger(id uint64) int {
	return len(c.sortedIDs) - c.searchPastIdx(id)
}

func (c *Cache) collect(ids []uint64) []Data {
	out := make([]Data, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.lobbies[id].Data.Clone())
	}
	return out
}

func (c *Cache) insertSortedID(id uint64) {
	i := c.searchIdx(id)
	c.sortedIDs = append(c.sortedIDs, 0)
	copy(c.sortedIDs[i+1:], c.sortedIDs[i:])
	c.sortedIDs[i] = id
}

func (c *Cache) removeSortedID(id uint64) {
	i := c.searchIdx(id)
	if i < len(c.sortedIDs) && c.sortedIDs[i] == id {
		c.sortedIDs = append(c.sortedIDs[:i], c.sortedIDs[i+1:]...)
	}
}

func clampNum(num, maxSize uint16) int {
	if num > maxSize {
		num = maxSize
	}
	return int(num)
}

func reverse(page []Data) {
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
}
