// internal/host/disconnect_buffer.go
package host

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DisconnectBufferConfig configures the hub disconnect grace list.
type DisconnectBufferConfig struct {
	// ExpiryDuration is how long a disconnected hub stays recognized before
	// the host forcibly unregisters it and aborts its games.
	ExpiryDuration time.Duration
}

// DisconnectBuffer lists hubs that dropped their connection but whose
// identity is still recognized. A buffered hub is treated as registered at
// zero capacity so in-flight work can resolve; reconnecting within the TTL
// is a reconnect, not a new hub.
type DisconnectBuffer struct {
	config DisconnectBufferConfig
	log    *logrus.Logger
	now    func() time.Time
	// hub id -> disconnect timestamp
	buffered map[uuid.UUID]time.Time
}

// NewDisconnectBuffer makes an empty disconnect buffer.
func NewDisconnectBuffer(config DisconnectBufferConfig, log *logrus.Logger, now func() time.Time) *DisconnectBuffer {
	if now == nil {
		now = time.Now
	}
	return &DisconnectBuffer{
		config:   config,
		log:      log,
		now:      now,
		buffered: make(map[uuid.UUID]time.Time),
	}
}

// AddHub buffers a freshly disconnected hub.
func (b *DisconnectBuffer) AddHub(hubID uuid.UUID) error {
	if _, exists := b.buffered[hubID]; exists {
		return errors.New("hub already in disconnect buffer")
	}
	b.buffered[hubID] = b.now()
	return nil
}

// RemoveHub takes a hub out of the buffer (it reconnected in time).
func (b *DisconnectBuffer) RemoveHub(hubID uuid.UUID) error {
	if _, exists := b.buffered[hubID]; !exists {
		return errors.New("hub not in disconnect buffer")
	}
	delete(b.buffered, hubID)
	return nil
}

// HasHub reports whether the hub is buffered.
func (b *DisconnectBuffer) HasHub(hubID uuid.UUID) bool {
	_, exists := b.buffered[hubID]
	return exists
}

// NumBuffered returns the number of buffered hubs.
func (b *DisconnectBuffer) NumBuffered() int { return len(b.buffered) }

// DrainExpired removes and returns hubs whose grace period ran out.
func (b *DisconnectBuffer) DrainExpired() []uuid.UUID {
	current := b.now()
	var expired []uuid.UUID
	for hubID, since := range b.buffered {
		if current.Sub(since) > b.config.ExpiryDuration {
			b.log.WithField("hub_id", hubID).Info("hub disconnect grace expired")
			expired = append(expired, hubID)
			delete(b.buffered, hubID)
		}
	}
	return expired
}
