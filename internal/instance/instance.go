// internal/instance/instance.go
package instance

import (
	"context"
	"errors"

	"github.com/jason-s-yu/arena/internal/protocol"
)

// GameFactory is the capability that actually runs a game session. The core
// treats the game world as a black box: the factory consumes commands and
// emits reports until the session ends. Implementations must emit exactly
// one ReportGameStart followed by at most one ReportGameOver or
// ReportAborted, or a single ReportAborted if the game cannot start, then
// return.
type GameFactory interface {
	RunGame(
		ctx context.Context,
		pack protocol.LaunchPack,
		commands <-chan protocol.GameInstanceCommand,
		reports chan<- protocol.GameInstanceReport,
	) error
}

// Launcher starts game instances. Implementations decide whether the
// session runs in-process or as a child process.
type Launcher interface {
	Launch(ctx context.Context, pack protocol.LaunchPack) (*Instance, error)
}

// Instance is the hub-side handle to one running game session: a command
// sender, a report receiver, and a termination signal. The hub weakly
// references the game by id only.
type Instance struct {
	id       uint64
	commands chan protocol.GameInstanceCommand
	reports  chan protocol.GameInstanceReport
	done     chan struct{}
}

func newInstance(id uint64) *Instance {
	return &Instance{
		id:       id,
		commands: make(chan protocol.GameInstanceCommand, 8),
		reports:  make(chan protocol.GameInstanceReport, 8),
		done:     make(chan struct{}),
	}
}

// ID returns the game id this instance is running.
func (i *Instance) ID() uint64 { return i.id }

// SendCommand delivers a command to the instance, at-most-once and
// best-effort. Returns an error if the instance terminated or its command
// queue is full.
func (i *Instance) SendCommand(cmd protocol.GameInstanceCommand) error {
	select {
	case <-i.done:
		return errors.New("instance terminated")
	default:
	}
	select {
	case i.commands <- cmd:
		return nil
	default:
		return errors.New("instance command queue full")
	}
}

// Reports yields the instance's report stream. The channel closes when the
// instance terminates; closure without a game-over report means the game
// died.
func (i *Instance) Reports() <-chan protocol.GameInstanceReport { return i.reports }

// Done is closed when the instance has terminated.
func (i *Instance) Done() <-chan struct{} { return i.done }

// Running reports whether the instance is still alive.
func (i *Instance) Running() bool {
	select {
	case <-i.done:
		return false
	default:
		return true
	}
}
