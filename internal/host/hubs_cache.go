// internal/host/hubs_cache.go
package host

import (
	"bytes"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// hubState tracks one registered hub: its last-reported capacity plus the
// games the host believes are pending or running on it.
type hubState struct {
	capacity uint16
	pending  map[uint64]struct{}
	running  map[uint64]struct{}
}

// estimatedCapacity is the reported capacity minus pending launches. It can
// go negative when a hub's report lags behind assignments.
func (s *hubState) estimatedCapacity() int32 {
	return int32(s.capacity) - int32(len(s.pending))
}

// sortableHub is an entry in the capacity-ordered selection index. The hub
// id is part of the key so hubs with equal capacity coexist and ties break
// deterministically.
type sortableHub struct {
	estimated int32
	id        uuid.UUID
}

func (a sortableHub) less(b sortableHub) bool {
	if a.estimated != b.estimated {
		return a.estimated < b.estimated
	}
	return bytes.Compare(a.id[:], b.id[:]) < 0
}

// GameHubsCache is the hub registry plus the load-balancing index. Every
// mutation rebuckets the affected hub in the ordered index. Owned by the
// host tick loop.
type GameHubsCache struct {
	log  *logrus.Logger
	hubs map[uuid.UUID]*hubState
	// selection index sorted ascending by (estimated capacity, hub id)
	sorted []sortableHub
}

// NewGameHubsCache makes an empty hub registry.
func NewGameHubsCache(log *logrus.Logger) *GameHubsCache {
	return &GameHubsCache{log: log, hubs: make(map[uuid.UUID]*hubState)}
}

// InsertHub registers a hub with capacity zero.
func (c *GameHubsCache) InsertHub(hubID uuid.UUID) error {
	if _, exists := c.hubs[hubID]; exists {
		return errors.New("hub already registered")
	}
	state := &hubState{
		pending: make(map[uint64]struct{}),
		running: make(map[uint64]struct{}),
	}
	c.hubs[hubID] = state
	c.indexInsert(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	c.log.WithField("hub_id", hubID).Info("registered game hub")
	return nil
}

// RemoveHub unregisters a hub.
func (c *GameHubsCache) RemoveHub(hubID uuid.UUID) error {
	state, exists := c.hubs[hubID]
	if !exists {
		return errors.New("hub not registered")
	}
	c.indexRemove(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	delete(c.hubs, hubID)
	c.log.WithField("hub_id", hubID).Info("removed game hub")
	return nil
}

// HasHub reports whether the hub is registered.
func (c *GameHubsCache) HasHub(hubID uuid.UUID) bool {
	_, exists := c.hubs[hubID]
	return exists
}

// NumHubs returns the number of registered hubs.
func (c *GameHubsCache) NumHubs() int { return len(c.hubs) }

// SetCapacity records a hub's reported capacity and rebuckets it.
func (c *GameHubsCache) SetCapacity(hubID uuid.UUID, capacity uint16) error {
	state, exists := c.hubs[hubID]
	if !exists {
		return errors.New("hub not registered")
	}
	c.indexRemove(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	state.capacity = capacity
	c.indexInsert(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	c.log.WithFields(logrus.Fields{"hub_id": hubID, "capacity": capacity}).Trace("set hub capacity")
	return nil
}

// AddPendingGame reserves a launch slot on the hub. Fails if the game is
// already pending or running there.
func (c *GameHubsCache) AddPendingGame(hubID uuid.UUID, gameID uint64) error {
	state, exists := c.hubs[hubID]
	if !exists {
		return errors.New("hub not registered")
	}
	if _, dup := state.pending[gameID]; dup {
		return errors.New("game already pending on hub")
	}
	if _, dup := state.running[gameID]; dup {
		return errors.New("game already running on hub")
	}
	c.indexRemove(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	state.pending[gameID] = struct{}{}
	c.indexInsert(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	c.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Trace("added pending game")
	return nil
}

// UpgradePendingGame moves a game from the hub's pending set to its running
// set.
func (c *GameHubsCache) UpgradePendingGame(hubID uuid.UUID, gameID uint64) error {
	state, exists := c.hubs[hubID]
	if !exists {
		return errors.New("hub not registered")
	}
	if _, pending := state.pending[gameID]; !pending {
		return errors.New("game not pending on hub")
	}
	c.indexRemove(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	delete(state.pending, gameID)
	c.indexInsert(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	state.running[gameID] = struct{}{}
	c.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Trace("upgraded pending game")
	return nil
}

// RemovePendingGame releases a reserved launch slot.
func (c *GameHubsCache) RemovePendingGame(hubID uuid.UUID, gameID uint64) error {
	state, exists := c.hubs[hubID]
	if !exists {
		return errors.New("hub not registered")
	}
	if _, pending := state.pending[gameID]; !pending {
		return errors.New("game not pending on hub")
	}
	c.indexRemove(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	delete(state.pending, gameID)
	c.indexInsert(sortableHub{estimated: state.estimatedCapacity(), id: hubID})
	c.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Trace("removed pending game")
	return nil
}

// RemoveGame removes a game from the hub's running set.
func (c *GameHubsCache) RemoveGame(hubID uuid.UUID, gameID uint64) error {
	state, exists := c.hubs[hubID]
	if !exists {
		return errors.New("hub not registered")
	}
	if _, running := state.running[gameID]; !running {
		return errors.New("game not running on hub")
	}
	delete(state.running, gameID)
	c.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Trace("removed game")
	return nil
}

// DrainGames empties and returns the hub's running set.
func (c *GameHubsCache) DrainGames(hubID uuid.UUID) ([]uint64, error) {
	state, exists := c.hubs[hubID]
	if !exists {
		return nil, errors.New("hub not registered")
	}
	games := make([]uint64, 0, len(state.running))
	for gameID := range state.running {
		games = append(games, gameID)
	}
	state.running = make(map[uint64]struct{})
	sort.Slice(games, func(i, j int) bool { return games[i] < games[j] })
	return games, nil
}

// HasPendingGame reports whether the game is pending on the hub.
func (c *GameHubsCache) HasPendingGame(hubID uuid.UUID, gameID uint64) bool {
	state, exists := c.hubs[hubID]
	if !exists {
		return false
	}
	_, pending := state.pending[gameID]
	return pending
}

// HasGame reports whether the game is running on the hub.
func (c *GameHubsCache) HasGame(hubID uuid.UUID, gameID uint64) bool {
	state, exists := c.hubs[hubID]
	if !exists {
		return false
	}
	_, running := state.running[gameID]
	return running
}

// EstimatedCapacity returns the hub's current estimated capacity.
func (c *GameHubsCache) EstimatedCapacity(hubID uuid.UUID) (int32, bool) {
	state, exists := c.hubs[hubID]
	if !exists {
		return 0, false
	}
	return state.estimatedCapacity(), true
}

// HighestCapacityHub returns the hub with the greatest estimated capacity,
// ties broken by hub id. Returns false if no hub has estimated capacity > 0.
func (c *GameHubsCache) HighestCapacityHub() (uuid.UUID, bool) {
	if len(c.sorted) == 0 {
		return uuid.Nil, false
	}
	top := c.sorted[len(c.sorted)-1]
	if top.estimated <= 0 {
		return uuid.Nil, false
	}
	return top.id, true
}

func (c *GameHubsCache) indexInsert(entry sortableHub) {
	i := sort.Search(len(c.sorted), func(i int) bool { return !c.sorted[i].less(entry) })
	c.sorted = append(c.sorted, sortableHub{})
	copy(c.sorted[i+1:], c.sorted[i:])
	c.sorted[i] = entry
}

func (c *GameHubsCache) indexRemove(entry sortableHub) {
	i := sort.Search(len(c.sorted), func(i int) bool { return !c.sorted[i].less(entry) })
	if i < len(c.sorted) && c.sorted[i] == entry {
		c.sorted = append(c.sorted[:i], c.sorted[i+1:]...)
		return
	}
	c.log.WithField("hub_id", entry.id).Error("selection index entry missing during rebucket")
}
