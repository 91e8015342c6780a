// internal/hub/source.go
package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/arena/internal/instance"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// LaunchPackSource is the capability that turns a start request into a
// launch pack. Implementations may fetch game configs from anywhere; the
// hub only awaits the result under a deadline.
type LaunchPackSource interface {
	GetLaunchPack(ctx context.Context, request protocol.GameStartRequest) (protocol.LaunchPack, error)
}

// DemoLaunchPackSource builds launch packs for the demo game factory:
// every lobby member becomes a game client with a sequential client id.
type DemoLaunchPackSource struct {
	// GameDuration is forwarded to the demo game (Go duration string).
	GameDuration string
}

// GetLaunchPack implements LaunchPackSource.
func (s DemoLaunchPackSource) GetLaunchPack(_ context.Context, request protocol.GameStartRequest) (protocol.LaunchPack, error) {
	members := make([]instance.DemoMember, 0, len(request.LobbyData.Members))
	for i, m := range request.LobbyData.Members {
		members = append(members, instance.DemoMember{
			UserID:   m.UserID,
			ClientID: uint64(i + 1),
		})
	}
	data, err := json.Marshal(instance.DemoLaunchData{
		Members:  members,
		Duration: s.GameDuration,
	})
	if err != nil {
		return protocol.LaunchPack{}, fmt.Errorf("marshal demo launch data: %w", err)
	}
	return protocol.LaunchPack{GameID: request.GameID(), Data: data}, nil
}
