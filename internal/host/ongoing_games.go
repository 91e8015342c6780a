// internal/host/ongoing_games.go
package host

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// OngoingGame is a game actively running on some hub. The connect metas are
// cached so the host can mint fresh tokens for reconnecting users.
type OngoingGame struct {
	GameID     uint64
	HubID      uuid.UUID
	Metas      connect.Metas
	StartInfos []protocol.GameStartInfo
}

// OngoingGamesCacheConfig configures the ongoing-games cache.
type OngoingGamesCacheConfig struct {
	// ExpiryDuration is how long a game may stay in the cache before it is
	// presumed lost.
	ExpiryDuration time.Duration
}

type ongoingEntry struct {
	game  OngoingGame
	birth time.Time
}

// OngoingGamesCache tracks games waiting for game-over reports. It keeps a
// reverse user index for efficient reconnect lookups. Owned by the host
// tick loop.
type OngoingGamesCache struct {
	config OngoingGamesCacheConfig
	log    *logrus.Logger
	now    func() time.Time
	games  map[uint64]*ongoingEntry
	// user id -> game id reverse index
	users map[uuid.UUID]uint64
}

// NewOngoingGamesCache makes an empty ongoing-games cache.
func NewOngoingGamesCache(config OngoingGamesCacheConfig, log *logrus.Logger, now func() time.Time) *OngoingGamesCache {
	if now == nil {
		now = time.Now
	}
	return &OngoingGamesCache{
		config: config,
		log:    log,
		now:    now,
		games:  make(map[uint64]*ongoingEntry),
		users:  make(map[uuid.UUID]uint64),
	}
}

// AddOngoingGame registers a game and all its users atomically: if any user
// is already in another game, every insert is rolled back and the call
// fails.
func (c *OngoingGamesCache) AddOngoingGame(game OngoingGame) error {
	if _, exists := c.games[game.GameID]; exists {
		c.log.WithField("game_id", game.GameID).Error("game already exists in ongoing cache")
		return errors.New("game already registered")
	}

	for idx, info := range game.StartInfos {
		if prevGameID, inGame := c.users[info.UserID]; inGame {
			// collision: undo the inserts made so far
			c.log.WithFields(logrus.Fields{
				"game_id":      game.GameID,
				"user_id":      info.UserID,
				"prev_game_id": prevGameID,
			}).Error("user is already playing a game")
			for i := 0; i < idx; i++ {
				delete(c.users, game.StartInfos[i].UserID)
			}
			return fmt.Errorf("user %s already in game %d", info.UserID, prevGameID)
		}
		c.users[info.UserID] = game.GameID
	}

	c.games[game.GameID] = &ongoingEntry{game: game, birth: c.now()}
	return nil
}

// RemoveOngoingGame removes a game and its users from the reverse index.
func (c *OngoingGamesCache) RemoveOngoingGame(gameID uint64) (OngoingGame, error) {
	entry, exists := c.games[gameID]
	if !exists {
		return OngoingGame{}, errors.New("game not registered")
	}
	delete(c.games, gameID)
	for _, info := range entry.game.StartInfos {
		delete(c.users, info.UserID)
	}
	return entry.game, nil
}

// HasGame reports whether the game is registered.
func (c *OngoingGamesCache) HasGame(gameID uint64) bool {
	_, exists := c.games[gameID]
	return exists
}

// NumGames returns the number of ongoing games.
func (c *OngoingGamesCache) NumGames() int { return len(c.games) }

// UserGame returns the game id the user is playing in.
func (c *OngoingGamesCache) UserGame(userID uuid.UUID) (uint64, bool) {
	gameID, exists := c.users[userID]
	return gameID, exists
}

// StartInfos returns the cached start infos for a game.
func (c *OngoingGamesCache) StartInfos(gameID uint64) ([]protocol.GameStartInfo, bool) {
	entry, exists := c.games[gameID]
	if !exists {
		return nil, false
	}
	return entry.game.StartInfos, true
}

// UserStartInfo looks up the user's game and mints a fresh connect token for
// their transport env. Every call produces a new token; tokens are
// single-use from the netcode layer's perspective.
func (c *OngoingGamesCache) UserStartInfo(
	userID uuid.UUID,
	env connect.ClientEnv,
) (uint64, connect.ServerConnectToken, protocol.GameStartInfo, error) {
	gameID, exists := c.users[userID]
	if !exists {
		return 0, connect.ServerConnectToken{}, protocol.GameStartInfo{}, errors.New("user not in a game")
	}
	entry, exists := c.games[gameID]
	if !exists {
		c.log.WithField("game_id", gameID).Error("reverse index points at missing game")
		return 0, connect.ServerConnectToken{}, protocol.GameStartInfo{}, errors.New("game missing from cache")
	}

	var startInfo protocol.GameStartInfo
	found := false
	for _, info := range entry.game.StartInfos {
		if info.UserID == userID {
			startInfo = info
			found = true
			break
		}
	}
	if !found {
		c.log.WithFields(logrus.Fields{"game_id": gameID, "user_id": userID}).Error("user missing from game start infos")
		return 0, connect.ServerConnectToken{}, protocol.GameStartInfo{}, errors.New("user missing from game")
	}

	token, err := entry.game.Metas.NewConnectToken(env, c.now(), startInfo.ClientID)
	if err != nil {
		return 0, connect.ServerConnectToken{}, protocol.GameStartInfo{}, fmt.Errorf("mint connect token: %w", err)
	}
	return gameID, token, startInfo, nil
}

// DrainExpired removes and returns games older than the configured expiry.
// Linear scan on demand.
func (c *OngoingGamesCache) DrainExpired() []OngoingGame {
	current := c.now()
	var expired []OngoingGame
	for gameID, entry := range c.games {
		if current.Sub(entry.birth) <= c.config.ExpiryDuration {
			continue
		}
		c.log.WithField("game_id", gameID).Trace("removing expired game")
		for _, info := range entry.game.StartInfos {
			delete(c.users, info.UserID)
		}
		delete(c.games, gameID)
		expired = append(expired, entry.game)
	}
	return expired
}
