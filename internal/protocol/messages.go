// internal/protocol/messages.go
package protocol

import (
	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/lobby"
)

// UserToHost is a message or request sent by a user client to the host.
type UserToHost interface {
	MsgType() string
	userToHost()
}

// MakeLobby creates a new lobby owned by the sender. Answered with LobbyJoin
// or a Reject bound to the request id.
type MakeLobby struct {
	Color      lobby.MemberColor `json:"color"`
	Password   string            `json:"password"`
	CustomData []byte            `json:"custom_data,omitempty"`
}

// JoinLobby adds the sender to an open lobby.
type JoinLobby struct {
	ID       uint64            `json:"id"`
	Color    lobby.MemberColor `json:"color"`
	Password string            `json:"password"`
}

// LeaveLobby removes the sender from a lobby (nacking its pending state
// first if applicable).
type LeaveLobby struct {
	ID uint64 `json:"id"`
}

// LaunchLobbyGame starts the two-phase launch for the sender's lobby.
// Owner-only.
type LaunchLobbyGame struct {
	ID uint64 `json:"id"`
}

// GetConnectToken requests a fresh single-use token for the sender's
// ongoing game.
type GetConnectToken struct {
	ID uint64 `json:"id"`
}

// LobbySearch queries the open lobby list.
type LobbySearch struct {
	Request lobby.SearchRequest `json:"request"`
}

// AckPendingLobby is the sender's positive response to a
// PendingLobbyAckRequest.
type AckPendingLobby struct {
	ID uint64 `json:"id"`
}

// NackPendingLobby is the sender's negative response. Forbidden once the
// lobby is fully acked.
type NackPendingLobby struct {
	ID uint64 `json:"id"`
}

// ResetLobby force-nacks any pending lobby and leaves any lobby the sender
// is in. Rejected while in-game.
type ResetLobby struct{}

func (MakeLobby) MsgType() string       { return "make_lobby" }
func (JoinLobby) MsgType() string       { return "join_lobby" }
func (LeaveLobby) MsgType() string      { return "leave_lobby" }
func (LaunchLobbyGame) MsgType() string { return "launch_lobby_game" }
func (GetConnectToken) MsgType() string { return "get_connect_token" }
func (LobbySearch) MsgType() string     { return "lobby_search" }
func (AckPendingLobby) MsgType() string { return "ack_pending_lobby" }
func (NackPendingLobby) MsgType() string { return "nack_pending_lobby" }
func (ResetLobby) MsgType() string      { return "reset_lobby" }

func (MakeLobby) userToHost()        {}
func (JoinLobby) userToHost()        {}
func (LeaveLobby) userToHost()       {}
func (LaunchLobbyGame) userToHost()  {}
func (GetConnectToken) userToHost()  {}
func (LobbySearch) userToHost()      {}
func (AckPendingLobby) userToHost()  {}
func (NackPendingLobby) userToHost() {}
func (ResetLobby) userToHost()       {}

// HostToUser is a message or response sent by the host to a user client.
type HostToUser interface {
	MsgType() string
	hostToUser()
}

// LobbyJoin confirms the sender joined (or created) a lobby.
type LobbyJoin struct {
	Lobby lobby.Data `json:"lobby"`
}

// LobbySearchResult answers a LobbySearch.
type LobbySearchResult struct {
	Result lobby.SearchResult `json:"result"`
}

// LobbyState broadcasts a lobby's current membership after any change.
type LobbyState struct {
	Lobby lobby.Data `json:"lobby"`
}

// LobbyLeave tells a user they are no longer in the lobby.
type LobbyLeave struct {
	ID uint64 `json:"id"`
}

// PendingLobbyAckRequest asks a member to confirm readiness for launch.
type PendingLobbyAckRequest struct {
	ID uint64 `json:"id"`
}

// PendingLobbyAckFail tells members the launch failed; the lobby has been
// reinstated.
type PendingLobbyAckFail struct {
	ID uint64 `json:"id"`
}

// GameStart carries the user's connect token and start info for a game that
// just started (or that they reconnected to).
type GameStart struct {
	ID        uint64                     `json:"id"`
	Token     connect.ServerConnectToken `json:"token"`
	StartInfo GameStartInfo              `json:"start_info"`
}

// GameOver forwards the game's final report.
type GameOver struct {
	ID     uint64         `json:"id"`
	Report GameOverReport `json:"report"`
}

// GameAborted tells a user their game died without a game-over report.
type GameAborted struct {
	ID uint64 `json:"id"`
}

// ConnectToken answers GetConnectToken with a freshly minted token.
type ConnectToken struct {
	ID    uint64                     `json:"id"`
	Token connect.ServerConnectToken `json:"token"`
}

// Ack acknowledges the request carried in the envelope's request id.
type Ack struct{}

// Reject rejects the request carried in the envelope's request id.
type Reject struct{}

func (LobbyJoin) MsgType() string              { return "lobby_join" }
func (LobbySearchResult) MsgType() string      { return "lobby_search_result" }
func (LobbyState) MsgType() string             { return "lobby_state" }
func (LobbyLeave) MsgType() string             { return "lobby_leave" }
func (PendingLobbyAckRequest) MsgType() string { return "pending_lobby_ack_request" }
func (PendingLobbyAckFail) MsgType() string    { return "pending_lobby_ack_fail" }
func (GameStart) MsgType() string              { return "game_start" }
func (GameOver) MsgType() string               { return "game_over" }
func (GameAborted) MsgType() string            { return "game_aborted" }
func (ConnectToken) MsgType() string           { return "connect_token" }
func (Ack) MsgType() string                    { return "ack" }
func (Reject) MsgType() string                 { return "reject" }

func (LobbyJoin) hostToUser()              {}
func (LobbySearchResult) hostToUser()      {}
func (LobbyState) hostToUser()             {}
func (LobbyLeave) hostToUser()             {}
func (PendingLobbyAckRequest) hostToUser() {}
func (PendingLobbyAckFail) hostToUser()    {}
func (GameStart) hostToUser()              {}
func (GameOver) hostToUser()               {}
func (GameAborted) hostToUser()            {}
func (ConnectToken) hostToUser()           {}
func (Ack) hostToUser()                    {}
func (Reject) hostToUser()                 {}

// HostToHub is a message sent by the host to a game hub.
type HostToHub interface {
	MsgType() string
	hostToHub()
}

// StartGame asks the hub to launch a game for a fully-acked lobby.
type StartGame struct {
	Request GameStartRequest `json:"request"`
}

// AbortGame tells the hub to stop a pending or running game.
type AbortGame struct {
	ID uint64 `json:"id"`
}

func (StartGame) MsgType() string { return "start_game" }
func (AbortGame) MsgType() string { return "abort_game" }

func (StartGame) hostToHub() {}
func (AbortGame) hostToHub() {}

// HubToHost is a message sent by a game hub to the host.
type HubToHost interface {
	MsgType() string
	hubToHost()
}

// Capacity reports the hub's estimated headroom.
type Capacity struct {
	N uint16 `json:"n"`
}

// HubGameStart confirms a launch: the original request plus the instance's
// start report.
type HubGameStart struct {
	ID      uint64           `json:"id"`
	Request GameStartRequest `json:"request"`
	Report  GameStartReport  `json:"report"`
}

// HubGameOver forwards a finished game's report.
type HubGameOver struct {
	ID     uint64         `json:"id"`
	Report GameOverReport `json:"report"`
}

// HubAbort declines or cancels a game.
type HubAbort struct {
	ID uint64 `json:"id"`
}

func (Capacity) MsgType() string     { return "capacity" }
func (HubGameStart) MsgType() string { return "game_start" }
func (HubGameOver) MsgType() string  { return "game_over" }
func (HubAbort) MsgType() string     { return "abort" }

func (Capacity) hubToHost()     {}
func (HubGameStart) hubToHost() {}
func (HubGameOver) hubToHost()  {}
func (HubAbort) hubToHost()     {}

// GameInstanceCommand is sent by a hub to one of its game instances.
type GameInstanceCommand interface {
	MsgType() string
	instanceCommand()
}

// CommandAbort tells the instance to shut down without a game-over report.
type CommandAbort struct{}

func (CommandAbort) MsgType() string  { return "abort" }
func (CommandAbort) instanceCommand() {}

// GameInstanceReport is emitted by a game instance: exactly one start report
// followed by at most one game-over, or a single aborted report.
type GameInstanceReport interface {
	MsgType() string
	instanceReport()
}

// ReportGameStart is the instance's first report, emitted once its sockets
// are open.
type ReportGameStart struct {
	ID     uint64          `json:"id"`
	Report GameStartReport `json:"report"`
}

// ReportGameOver is the instance's final report on a normal finish.
type ReportGameOver struct {
	ID     uint64         `json:"id"`
	Report GameOverReport `json:"report"`
}

// ReportAborted signals the instance died without finishing.
type ReportAborted struct {
	ID uint64 `json:"id"`
}

func (ReportGameStart) MsgType() string { return "game_start" }
func (ReportGameOver) MsgType() string  { return "game_over" }
func (ReportAborted) MsgType() string   { return "game_aborted" }

func (ReportGameStart) instanceReport() {}
func (ReportGameOver) instanceReport()  {}
func (ReportAborted) instanceReport()   {}
