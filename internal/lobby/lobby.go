// internal/lobby/lobby.go
package lobby

import (
	"github.com/google/uuid"

	"github.com/jason-s-yu/arena/internal/connect"
)

// MemberColor is an opaque role/color tag attached to each lobby member.
// Its meaning (player, watcher, team slot, ...) belongs to the installed
// Checker, not to the core.
type MemberColor uint64

// MemberData describes how one member participates in a lobby.
type MemberData struct {
	Env   connect.ClientEnv `json:"env"`
	Color MemberColor       `json:"color"`
}

// Member pairs a user id with its member data. Members are kept in join
// order so broadcasts fan out deterministically.
type Member struct {
	UserID uuid.UUID  `json:"user_id"`
	Data   MemberData `json:"data"`
}

// Data is the broadcastable portion of a lobby: everything except the
// password.
type Data struct {
	ID         uint64    `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Members    []Member  `json:"members"`
	CustomData []byte    `json:"custom_data,omitempty"`
}

// Lobby is a pre-game meeting room: an owner, an ordered member list, a
// password, and a custom data blob the core never inspects.
type Lobby struct {
	Data     Data
	Password string
}

// New creates an empty lobby. The owner is not yet a member; the lobbies
// cache adds the owner after the checker approves.
func New(id uint64, ownerID uuid.UUID, password string, customData []byte) *Lobby {
	return &Lobby{
		Data: Data{
			ID:         id,
			OwnerID:    ownerID,
			CustomData: customData,
		},
		Password: password,
	}
}

// ID returns the lobby id.
func (l *Lobby) ID() uint64 { return l.Data.ID }

// IsOwner reports whether the user owns this lobby.
func (l *Lobby) IsOwner(userID uuid.UUID) bool { return l.Data.OwnerID == userID }

// NumMembers returns the current member count.
func (l *Lobby) NumMembers() int { return len(l.Data.Members) }

// HasMember reports whether the user is a member.
func (l *Lobby) HasMember(userID uuid.UUID) bool {
	return l.Data.HasMember(userID)
}

// GetMember returns the member data for a user.
func (l *Lobby) GetMember(userID uuid.UUID) (MemberData, bool) {
	for _, m := range l.Data.Members {
		if m.UserID == userID {
			return m.Data, true
		}
	}
	return MemberData{}, false
}

// AddMember appends a member. Callers validate through the Checker first;
// adding an existing member is a no-op returning false.
func (l *Lobby) AddMember(userID uuid.UUID, data MemberData) bool {
	if l.HasMember(userID) {
		return false
	}
	l.Data.Members = append(l.Data.Members, Member{UserID: userID, Data: data})
	return true
}

// RemoveMember removes a member, preserving the order of the rest. Returns
// false if the user was not a member.
func (l *Lobby) RemoveMember(userID uuid.UUID) bool {
	for i, m := range l.Data.Members {
		if m.UserID == userID {
			l.Data.Members = append(l.Data.Members[:i], l.Data.Members[i+1:]...)
			return true
		}
	}
	return false
}

// HasMember reports whether the user appears in the member list.
func (d *Data) HasMember(userID uuid.UUID) bool {
	for _, m := range d.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// MemberIDs returns the member user ids in join order.
func (d *Data) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d.Members))
	for _, m := range d.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// Equal compares two lobby snapshots field by field. The host uses this to
// verify a hub's start report against the cached pending lobby.
func (d *Data) Equal(other *Data) bool {
	if d.ID != other.ID || d.OwnerID != other.OwnerID {
		return false
	}
	if len(d.Members) != len(other.Members) {
		return false
	}
	for i, m := range d.Members {
		if m != other.Members[i] {
			return false
		}
	}
	if len(d.CustomData) != len(other.CustomData) {
		return false
	}
	for i, b := range d.CustomData {
		if b != other.CustomData[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the data.
func (d *Data) Clone() Data {
	cp := *d
	cp.Members = append([]Member(nil), d.Members...)
	cp.CustomData = append([]byte(nil), d.CustomData...)
	return cp
}
