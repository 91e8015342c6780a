// internal/hub/pending_games.go
package hub

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/protocol"
)

// PendingGamesCacheConfig configures the pending-games cache.
type PendingGamesCacheConfig struct {
	// ExpiryDuration bounds how long a launch-pack request may stay
	// outstanding before the hub gives up on the game.
	ExpiryDuration time.Duration
}

type pendingGame struct {
	request protocol.GameStartRequest
	birth   time.Time
}

// PendingGamesCache records games whose launch pack is still being fetched.
// Owned by the hub tick loop.
type PendingGamesCache struct {
	config  PendingGamesCacheConfig
	log     *logrus.Logger
	now     func() time.Time
	pending map[uint64]*pendingGame
}

// NewPendingGamesCache makes an empty pending-games cache.
func NewPendingGamesCache(config PendingGamesCacheConfig, log *logrus.Logger, now func() time.Time) *PendingGamesCache {
	if now == nil {
		now = time.Now
	}
	return &PendingGamesCache{
		config:  config,
		log:     log,
		now:     now,
		pending: make(map[uint64]*pendingGame),
	}
}

// AddPendingGame records a start request awaiting its launch pack.
func (c *PendingGamesCache) AddPendingGame(request protocol.GameStartRequest) error {
	gameID := request.GameID()
	if _, exists := c.pending[gameID]; exists {
		return errors.New("game already pending")
	}
	c.pending[gameID] = &pendingGame{request: request, birth: c.now()}
	c.log.WithField("game_id", gameID).Trace("added pending game")
	return nil
}

// RemovePendingGame removes a pending game and returns its request.
func (c *PendingGamesCache) RemovePendingGame(gameID uint64) (protocol.GameStartRequest, error) {
	entry, exists := c.pending[gameID]
	if !exists {
		return protocol.GameStartRequest{}, errors.New("game not pending")
	}
	delete(c.pending, gameID)
	return entry.request, nil
}

// HasGame reports whether the game is pending.
func (c *PendingGamesCache) HasGame(gameID uint64) bool {
	_, exists := c.pending[gameID]
	return exists
}

// NumPending returns the number of pending games.
func (c *PendingGamesCache) NumPending() int { return len(c.pending) }

// DrainExpired removes and returns requests whose launch-pack fetch went
// stale.
func (c *PendingGamesCache) DrainExpired() []protocol.GameStartRequest {
	current := c.now()
	var expired []protocol.GameStartRequest
	for gameID, entry := range c.pending {
		if current.Sub(entry.birth) <= c.config.ExpiryDuration {
			continue
		}
		c.log.WithField("game_id", gameID).Trace("removing expired pending game")
		expired = append(expired, entry.request)
		delete(c.pending, gameID)
	}
	return expired
}
