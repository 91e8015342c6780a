// internal/protocol/types.go
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/lobby"
)

// GameStartInfo is the per-member startup record a game instance reports.
// ClientID is the netcode-level identity the member's connect tokens are
// bound to; StartData is game-specific and opaque to the core.
type GameStartInfo struct {
	UserID    uuid.UUID       `json:"user_id"`
	ClientID  uint64          `json:"client_id"`
	StartData json.RawMessage `json:"start_data,omitempty"`
}

// GameStartRequest asks a hub to launch a game for a fully-acked lobby.
type GameStartRequest struct {
	LobbyData lobby.Data `json:"lobby_data"`
}

// GameID returns the id of the game this request would start (the lobby id).
func (r *GameStartRequest) GameID() uint64 { return r.LobbyData.ID }

// GameStartReport is produced by a game instance once its sockets are open:
// per-transport connect metadata plus one start info per member.
type GameStartReport struct {
	Metas      connect.Metas   `json:"metas"`
	StartInfos []GameStartInfo `json:"start_infos"`
}

// GameOverReport is the game's final report, opaque to the core.
type GameOverReport struct {
	GameID uint64          `json:"game_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// LaunchPack is everything a game instance needs to boot: the game id plus
// a game-specific payload produced by the hub's LaunchPackSource.
type LaunchPack struct {
	GameID uint64          `json:"game_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}
