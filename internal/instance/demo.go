// internal/instance/demo.go
package instance

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// DemoLaunchData is the launch-pack payload consumed by the demo factory.
type DemoLaunchData struct {
	Members  []DemoMember `json:"members"`
	Duration string       `json:"duration"`
}

// DemoMember binds a lobby member to its netcode client id.
type DemoMember struct {
	UserID   uuid.UUID `json:"user_id"`
	ClientID uint64    `json:"client_id"`
}

// DemoFactory is a minimal game used by integration tests and as the
// reference factory for cmd/gameinstance: it opens no real sockets, reports
// dummy native connect metadata, idles for the configured duration, then
// reports game over.
type DemoFactory struct {
	// ServerConfig is baked into the reported connect metadata.
	ServerConfig connect.GameServerSetupConfig
}

// RunGame implements GameFactory.
func (f DemoFactory) RunGame(
	ctx context.Context,
	pack protocol.LaunchPack,
	commands <-chan protocol.GameInstanceCommand,
	reports chan<- protocol.GameInstanceReport,
) error {
	var data DemoLaunchData
	if len(pack.Data) > 0 {
		if err := json.Unmarshal(pack.Data, &data); err != nil {
			reports <- &protocol.ReportAborted{ID: pack.GameID}
			return fmt.Errorf("bad launch pack: %w", err)
		}
	}

	duration := 50 * time.Millisecond
	if data.Duration != "" {
		parsed, err := time.ParseDuration(data.Duration)
		if err != nil {
			reports <- &protocol.ReportAborted{ID: pack.GameID}
			return fmt.Errorf("bad duration: %w", err)
		}
		duration = parsed
	}

	var authKey [32]byte
	if _, err := rand.Read(authKey[:]); err != nil {
		reports <- &protocol.ReportAborted{ID: pack.GameID}
		return err
	}

	startInfos := make([]protocol.GameStartInfo, 0, len(data.Members))
	for _, m := range data.Members {
		startInfos = append(startInfos, protocol.GameStartInfo{
			UserID:   m.UserID,
			ClientID: m.ClientID,
		})
	}

	reports <- &protocol.ReportGameStart{
		ID: pack.GameID,
		Report: protocol.GameStartReport{
			Metas: connect.Metas{
				Native: &connect.MetaNative{
					ServerConfig:    f.ServerConfig,
					ServerAddresses: []string{"127.0.0.1:0"},
					AuthKey:         authKey,
				},
			},
			StartInfos: startInfos,
		},
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			reports <- &protocol.ReportAborted{ID: pack.GameID}
			return nil
		case cmd := <-commands:
			if _, ok := cmd.(*protocol.CommandAbort); ok {
				reports <- &protocol.ReportAborted{ID: pack.GameID}
				return nil
			}
		case <-timer.C:
			reports <- &protocol.ReportGameOver{
				ID:     pack.GameID,
				Report: protocol.GameOverReport{GameID: pack.GameID},
			}
			return nil
		}
	}
}
