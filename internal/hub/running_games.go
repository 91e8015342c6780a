// internal/hub/running_games.go
package hub

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/instance"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// RunningGamesCacheConfig configures the running-games cache.
type RunningGamesCacheConfig struct {
	// ExpiryDuration bounds how long a game instance may run before the hub
	// presumes it hung.
	ExpiryDuration time.Duration
}

type runningGame struct {
	request  protocol.GameStartRequest
	instance *instance.Instance
	birth    time.Time
}

// RunningGamesCache owns the live game instances. Game ids SHOULD be unique
// per process lifetime: reusing an id while reports from the previous
// instance are still in flight can misattribute or lose a game-over report.
// Owned by the hub tick loop.
type RunningGamesCache struct {
	config RunningGamesCacheConfig
	log    *logrus.Logger
	now    func() time.Time
	games  map[uint64]*runningGame
}

// NewRunningGamesCache makes an empty running-games cache.
func NewRunningGamesCache(config RunningGamesCacheConfig, log *logrus.Logger, now func() time.Time) *RunningGamesCache {
	if now == nil {
		now = time.Now
	}
	return &RunningGamesCache{
		config: config,
		log:    log,
		now:    now,
		games:  make(map[uint64]*runningGame),
	}
}

// AddInstance registers a launched instance with its originating request.
func (c *RunningGamesCache) AddInstance(request protocol.GameStartRequest, inst *instance.Instance) error {
	gameID := inst.ID()
	if _, exists := c.games[gameID]; exists {
		return errors.New("game already running")
	}
	c.games[gameID] = &runningGame{request: request, instance: inst, birth: c.now()}
	c.log.WithField("game_id", gameID).Trace("added running game")
	return nil
}

// ExtractInstance removes a game and returns its instance and request.
func (c *RunningGamesCache) ExtractInstance(gameID uint64) (*instance.Instance, protocol.GameStartRequest, bool) {
	entry, exists := c.games[gameID]
	if !exists {
		return nil, protocol.GameStartRequest{}, false
	}
	delete(c.games, gameID)
	return entry.instance, entry.request, true
}

// Request returns the start request for a running game.
func (c *RunningGamesCache) Request(gameID uint64) (protocol.GameStartRequest, bool) {
	entry, exists := c.games[gameID]
	if !exists {
		return protocol.GameStartRequest{}, false
	}
	return entry.request, true
}

// HasGame reports whether the game is running.
func (c *RunningGamesCache) HasGame(gameID uint64) bool {
	_, exists := c.games[gameID]
	return exists
}

// NumRunning returns the number of running games.
func (c *RunningGamesCache) NumRunning() int { return len(c.games) }

// DrainInvalid removes and returns instances that outlived the expiry or
// already terminated.
func (c *RunningGamesCache) DrainInvalid() []*instance.Instance {
	current := c.now()
	var invalid []*instance.Instance
	for gameID, entry := range c.games {
		expired := current.Sub(entry.birth) > c.config.ExpiryDuration
		if !expired && entry.instance.Running() {
			continue
		}
		c.log.WithField("game_id", gameID).Trace("removing invalid running game")
		invalid = append(invalid, entry.instance)
		delete(c.games, gameID)
	}
	return invalid
}

// DrainAll removes and returns every instance.
func (c *RunningGamesCache) DrainAll() []*instance.Instance {
	all := make([]*instance.Instance, 0, len(c.games))
	for gameID, entry := range c.games {
		all = append(all, entry.instance)
		delete(c.games, gameID)
	}
	return all
}
