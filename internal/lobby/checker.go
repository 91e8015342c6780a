// internal/lobby/checker.go
package lobby

import "github.com/google/uuid"

// Checker is the pluggable rule set for lobby composition. All size, role,
// and password rules live behind this interface; the core only asks.
type Checker interface {
	// CheckLobby validates a lobby as a whole (on creation and reinsertion).
	CheckLobby(l *Lobby) bool
	// AllowNewMember decides whether a user may join, given the password they
	// presented.
	AllowNewMember(l *Lobby, userID uuid.UUID, data MemberData, password string) bool
	// CanLaunch decides whether the lobby is ready to start a game.
	CanLaunch(l *Lobby) bool
}

// BasicChecker enforces a member cap, password equality, and a minimum
// player count to launch. Watchers are members whose color matches
// WatcherColor; they don't count toward MinPlayersToLaunch. A zero
// WatcherColor turns watcher tracking off, so every member counts as a
// player.
type BasicChecker struct {
	MaxMembers         int
	MinPlayersToLaunch int
	WatcherColor       MemberColor
}

// CheckLobby accepts lobbies within the member cap.
func (c BasicChecker) CheckLobby(l *Lobby) bool {
	return l.NumMembers() <= c.MaxMembers
}

// AllowNewMember accepts a joiner if the password matches, the lobby has
// room, and the user is not already a member.
func (c BasicChecker) AllowNewMember(l *Lobby, userID uuid.UUID, _ MemberData, password string) bool {
	if l.Password != password {
		return false
	}
	if l.NumMembers() >= c.MaxMembers {
		return false
	}
	return !l.HasMember(userID)
}

// CanLaunch requires at least MinPlayersToLaunch non-watcher members.
func (c BasicChecker) CanLaunch(l *Lobby) bool {
	players := 0
	for _, m := range l.Data.Members {
		if c.WatcherColor == 0 || m.Data.Color != c.WatcherColor {
			players++
		}
	}
	return players >= c.MinPlayersToLaunch
}
