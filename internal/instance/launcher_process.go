// internal/instance/launcher_process.go
package instance

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/arena/internal/protocol"
)

// ProcessLauncher runs each game session as a child process speaking the
// JSON-lines protocol over stdin/stdout. The launch pack travels as a
// command-line argument; commands go down stdin, reports come up stdout.
type ProcessLauncher struct {
	binaryPath string
	extraArgs  []string
	log        *logrus.Logger
}

// NewProcessLauncher makes a launcher that spawns binaryPath for each game.
func NewProcessLauncher(binaryPath string, extraArgs []string, log *logrus.Logger) *ProcessLauncher {
	return &ProcessLauncher{binaryPath: binaryPath, extraArgs: extraArgs, log: log}
}

// Launch spawns the child and starts the stdin-writer and stdout-reader
// pump tasks. Any serialization failure kills the child; the instance's
// report channel closes when the child exits.
func (l *ProcessLauncher) Launch(ctx context.Context, pack protocol.LaunchPack) (*Instance, error) {
	packJSON, err := json.Marshal(pack)
	if err != nil {
		return nil, fmt.Errorf("marshal launch pack: %w", err)
	}

	args := append(append([]string(nil), l.extraArgs...), "--launch-pack", string(packJSON))
	cmd := exec.CommandContext(ctx, l.binaryPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start game instance: %w", err)
	}

	inst := newInstance(pack.GameID)
	log := l.log.WithField("game_id", pack.GameID)

	var pumps errgroup.Group

	// stdin writer: forward commands as JSON lines until the instance dies.
	pumps.Go(func() error {
		writer := bufio.NewWriter(stdin)
		defer stdin.Close()
		for {
			select {
			case <-inst.done:
				return nil
			case cmdMsg := <-inst.commands:
				line, err := protocol.EncodeInstanceCommand(cmdMsg)
				if err != nil {
					log.WithError(err).Warn("failed serializing instance command, killing child")
					_ = cmd.Process.Kill()
					return err
				}
				if _, err := writer.Write(append(line, '\n')); err != nil {
					log.WithError(err).Warn("failed writing instance command, killing child")
					_ = cmd.Process.Kill()
					return err
				}
				if err := writer.Flush(); err != nil {
					_ = cmd.Process.Kill()
					return err
				}
			}
		}
	})

	// stdout reader: parse report lines and forward them to the hub, then
	// reap the child once stdout is drained.
	pumps.Go(func() error {
		readErr := func() error {
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				report, err := protocol.DecodeInstanceReport(line)
				if err != nil {
					log.WithError(err).Warn("failed deserializing instance report, killing child")
					_ = cmd.Process.Kill()
					return err
				}
				select {
				case inst.reports <- report:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := scanner.Err(); err != nil && err != io.EOF {
				return err
			}
			return nil
		}()

		// stdout drained: reap the child, then release the writer.
		waitErr := cmd.Wait()
		close(inst.done)
		if waitErr != nil {
			log.WithError(waitErr).Debug("game instance process exited abnormally")
		} else {
			log.Trace("game instance process exited")
		}
		return readErr
	})

	go func() {
		if err := pumps.Wait(); err != nil {
			log.WithError(err).Debug("instance pump task ended with error")
		}
		close(inst.reports)
	}()

	return inst, nil
}
