// internal/instance/launcher_local.go
package instance

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/protocol"
)

// LocalLauncher runs game sessions as in-process goroutines. Used by tests
// and single-box deployments where spawning child processes is overkill.
type LocalLauncher struct {
	factory GameFactory
	log     *logrus.Logger
}

// NewLocalLauncher wraps a game factory in an in-process launcher.
func NewLocalLauncher(factory GameFactory, log *logrus.Logger) *LocalLauncher {
	return &LocalLauncher{factory: factory, log: log}
}

// Launch starts the factory in a goroutine and returns its handle.
func (l *LocalLauncher) Launch(ctx context.Context, pack protocol.LaunchPack) (*Instance, error) {
	inst := newInstance(pack.GameID)

	go func() {
		defer close(inst.done)
		defer close(inst.reports)
		if err := l.factory.RunGame(ctx, pack, inst.commands, inst.reports); err != nil {
			l.log.WithField("game_id", pack.GameID).WithError(err).Warn("local game instance failed")
		}
	}()

	return inst, nil
}
