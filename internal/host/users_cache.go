// internal/host/users_cache.go
package host

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/connect"
)

// UserStateKind enumerates the user state machine.
type UserStateKind string

const (
	UserIdle           UserStateKind = "idle"
	UserInLobby        UserStateKind = "in_lobby"
	UserInPendingLobby UserStateKind = "in_pending_lobby"
	UserInGame         UserStateKind = "in_game"
)

// UserState is the user's position in the matchmaking flow. ID carries the
// lobby/game id for every kind except Idle.
type UserState struct {
	Kind UserStateKind
	ID   uint64
}

// Idle is the zero state.
func Idle() UserState { return UserState{Kind: UserIdle} }

// InLobby marks membership in an open lobby.
func InLobby(id uint64) UserState { return UserState{Kind: UserInLobby, ID: id} }

// InPendingLobby marks membership in a lobby mid-launch.
func InPendingLobby(id uint64) UserState { return UserState{Kind: UserInPendingLobby, ID: id} }

// InGame marks membership in an ongoing game.
func InGame(id uint64) UserState { return UserState{Kind: UserInGame, ID: id} }

type userEntry struct {
	env   connect.ClientEnv
	state UserState
}

// UsersCache tracks each connected user's transport env and state. State
// transitions are driven only by host-side handlers; the cache itself just
// records them. Owned by the host tick loop.
type UsersCache struct {
	log   *logrus.Logger
	users map[uuid.UUID]*userEntry
}

// NewUsersCache makes an empty users cache.
func NewUsersCache(log *logrus.Logger) *UsersCache {
	return &UsersCache{log: log, users: make(map[uuid.UUID]*userEntry)}
}

// AddUser registers a user as Idle. Fails if already registered.
func (c *UsersCache) AddUser(userID uuid.UUID, env connect.ClientEnv) error {
	if _, exists := c.users[userID]; exists {
		return errors.New("user already registered")
	}
	c.users[userID] = &userEntry{env: env, state: Idle()}
	return nil
}

// RemoveUser unregisters a user.
func (c *UsersCache) RemoveUser(userID uuid.UUID) error {
	if _, exists := c.users[userID]; !exists {
		return errors.New("user not registered")
	}
	delete(c.users, userID)
	return nil
}

// HasUser reports whether the user is registered.
func (c *UsersCache) HasUser(userID uuid.UUID) bool {
	_, exists := c.users[userID]
	return exists
}

// UserState returns the user's current state.
func (c *UsersCache) UserState(userID uuid.UUID) (UserState, bool) {
	entry, exists := c.users[userID]
	if !exists {
		return UserState{}, false
	}
	return entry.state, true
}

// UserEnv returns the user's transport env.
func (c *UsersCache) UserEnv(userID uuid.UUID) (connect.ClientEnv, bool) {
	entry, exists := c.users[userID]
	if !exists {
		return "", false
	}
	return entry.env, true
}

// UpdateUserState moves a user to a new state.
func (c *UsersCache) UpdateUserState(userID uuid.UUID, state UserState) error {
	entry, exists := c.users[userID]
	if !exists {
		return errors.New("user not registered")
	}
	c.log.WithFields(logrus.Fields{
		"user_id": userID,
		"from":    entry.state.Kind,
		"to":      state.Kind,
	}).Trace("user state transition")
	entry.state = state
	return nil
}

// NumUsers returns the number of registered users.
func (c *UsersCache) NumUsers() int { return len(c.users) }
