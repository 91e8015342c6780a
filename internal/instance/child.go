// internal/instance/child.go
package instance

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/protocol"
)

// RunChild is the child-process side of the JSON-lines protocol: it reads
// commands from stdin, runs the factory to completion, and writes every
// report to stdout, one message per line. Closure of stdin (parent death)
// cancels the game.
func RunChild(ctx context.Context, factory GameFactory, pack protocol.LaunchPack, log *logrus.Logger) error {
	return runChild(ctx, factory, pack, os.Stdin, os.Stdout, log)
}

// runChild is the testable core of RunChild with injectable pipes.
func runChild(
	ctx context.Context,
	factory GameFactory,
	pack protocol.LaunchPack,
	stdin io.Reader,
	stdout io.Writer,
	log *logrus.Logger,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	commands := make(chan protocol.GameInstanceCommand, 8)
	reports := make(chan protocol.GameInstanceReport, 8)

	// stdin reader: one command per line; EOF means the parent died, so the
	// game is cancelled rather than left orphaned.
	go func() {
		defer cancel()
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			cmd, err := protocol.DecodeInstanceCommand(line)
			if err != nil {
				log.WithError(err).Warn("failed deserializing instance command")
				return
			}
			select {
			case commands <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	// stdout writer: serialize reports as they arrive.
	writerDone := make(chan error, 1)
	writer := bufio.NewWriter(stdout)
	go func() {
		for report := range reports {
			line, err := protocol.EncodeInstanceReport(report)
			if err != nil {
				writerDone <- fmt.Errorf("serialize report: %w", err)
				return
			}
			if _, err := writer.Write(append(line, '\n')); err != nil {
				writerDone <- err
				return
			}
			if err := writer.Flush(); err != nil {
				writerDone <- err
				return
			}
		}
		writerDone <- nil
	}()

	runErr := factory.RunGame(ctx, pack, commands, reports)
	close(reports)
	if err := <-writerDone; err != nil {
		return err
	}
	return runErr
}
