// internal/lobby/pending_cache.go
package lobby

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PendingConfig configures the pending-lobbies cache.
type PendingConfig struct {
	// AckTimeout is how long a lobby may pend while waiting for member acks.
	AckTimeout time.Duration
	// StartBuffer is the extra grace after AckTimeout for a fully-acked lobby
	// to receive its game-start confirmation before the host gives up.
	StartBuffer time.Duration
}

type pendingLobby struct {
	lobby *Lobby
	acks  map[uuid.UUID]struct{}
	birth time.Time
}

func (p *pendingLobby) fullyAcked() bool {
	return len(p.acks) == p.lobby.NumMembers()
}

// PendingCache tracks lobbies mid-launch: waiting on member acks, then on
// the hub's start confirmation. Owned by the host tick loop.
type PendingCache struct {
	config  PendingConfig
	log     *logrus.Logger
	now     func() time.Time
	pending map[uint64]*pendingLobby
}

// NewPendingCache makes an empty pending-lobbies cache. now is injectable so
// expiry tests don't sleep.
func NewPendingCache(config PendingConfig, log *logrus.Logger, now func() time.Time) *PendingCache {
	if now == nil {
		now = time.Now
	}
	return &PendingCache{
		config:  config,
		log:     log,
		now:     now,
		pending: make(map[uint64]*pendingLobby),
	}
}

// AddLobby stamps the lobby's insertion time and begins collecting acks.
// Fails if the lobby id is already pending.
func (c *PendingCache) AddLobby(l *Lobby) error {
	if _, exists := c.pending[l.ID()]; exists {
		c.log.WithField("lobby_id", l.ID()).Error("lobby already exists when adding pending lobby")
		return errors.New("lobby already pending")
	}
	c.pending[l.ID()] = &pendingLobby{
		lobby: l,
		acks:  make(map[uuid.UUID]struct{}),
		birth: c.now(),
	}
	return nil
}

// AddUserAck records a member's ack. Fails if the lobby is not pending, the
// user is not a member, or the user already acked.
func (c *PendingCache) AddUserAck(lobbyID uint64, userID uuid.UUID) error {
	p, exists := c.pending[lobbyID]
	if !exists {
		return errors.New("lobby not pending")
	}
	if !p.lobby.HasMember(userID) {
		return errors.New("user is not a lobby member")
	}
	if _, acked := p.acks[userID]; acked {
		return errors.New("user already acked")
	}
	p.acks[userID] = struct{}{}
	c.log.WithFields(logrus.Fields{"lobby_id": lobbyID, "user_id": userID}).Trace("lobby acked")
	return nil
}

// RemoveNackedLobby removes a pending lobby in response to a member's nack
// and returns the lobby. The caller enforces the "cannot nack once
// fully-acked" rule for user-initiated nacks; force-nacks (disconnects,
// failed start requests) bypass it.
func (c *PendingCache) RemoveNackedLobby(lobbyID uint64, userID uuid.UUID) (*Lobby, error) {
	p, exists := c.pending[lobbyID]
	if !exists {
		return nil, errors.New("lobby not pending")
	}
	if !p.lobby.HasMember(userID) {
		return nil, errors.New("user is not a lobby member")
	}
	return c.RemoveLobby(lobbyID)
}

// RemoveLobby removes a pending lobby and returns it.
func (c *PendingCache) RemoveLobby(lobbyID uint64) (*Lobby, error) {
	p, exists := c.pending[lobbyID]
	if !exists {
		return nil, errors.New("lobby not pending")
	}
	delete(c.pending, lobbyID)
	return p.lobby, nil
}

// TryGetFullAckedLobby returns the lobby's data iff the lobby is pending and
// every member has acked.
func (c *PendingCache) TryGetFullAckedLobby(lobbyID uint64) (*Data, bool) {
	p, exists := c.pending[lobbyID]
	if !exists || !p.fullyAcked() {
		return nil, false
	}
	return &p.lobby.Data, true
}

// HasPendingLobby reports whether the lobby id is pending.
func (c *PendingCache) HasPendingLobby(lobbyID uint64) bool {
	_, exists := c.pending[lobbyID]
	return exists
}

// NumPending returns the number of pending lobbies.
func (c *PendingCache) NumPending() int { return len(c.pending) }

// DrainExpired removes and returns pending lobbies that timed out. A lobby
// expires at AckTimeout if not fully acked, and at AckTimeout+StartBuffer
// unconditionally (covers a hub that never confirms the start).
func (c *PendingCache) DrainExpired() []*Lobby {
	current := c.now()
	maxLifetime := c.config.AckTimeout + c.config.StartBuffer

	var expired []*Lobby
	for lobbyID, p := range c.pending {
		age := current.Sub(p.birth)
		switch {
		case age > maxLifetime:
			c.log.WithField("lobby_id", lobbyID).Trace("removing expired pending lobby (max lifetime)")
		case age > c.config.AckTimeout && !p.fullyAcked():
			c.log.WithField("lobby_id", lobbyID).Trace("removing expired pending lobby (ack timeout)")
		default:
			continue
		}
		expired = append(expired, p.lobby)
		delete(c.pending, lobbyID)
	}
	return expired
}
