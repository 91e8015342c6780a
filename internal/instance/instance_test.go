// internal/instance/instance_test.go
package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/protocol"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func demoPack(t *testing.T, gameID uint64, duration string, members ...DemoMember) protocol.LaunchPack {
	t.Helper()
	data, err := json.Marshal(DemoLaunchData{Members: members, Duration: duration})
	require.NoError(t, err)
	return protocol.LaunchPack{GameID: gameID, Data: data}
}

func TestLocalLauncherRunsToGameOver(t *testing.T) {
	launcher := NewLocalLauncher(DemoFactory{ServerConfig: connect.DummySetupConfig()}, testLogger())

	member := DemoMember{UserID: uuid.New(), ClientID: 1}
	inst, err := launcher.Launch(context.Background(), demoPack(t, 7, "10ms", member))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), inst.ID())

	var reports []protocol.GameInstanceReport
	for report := range inst.Reports() {
		reports = append(reports, report)
	}
	require.Len(t, reports, 2)

	start, ok := reports[0].(*protocol.ReportGameStart)
	require.True(t, ok, "first report must be game start")
	assert.Equal(t, uint64(7), start.ID)
	require.NotNil(t, start.Report.Metas.Native)
	require.Len(t, start.Report.StartInfos, 1)
	assert.Equal(t, member.UserID, start.Report.StartInfos[0].UserID)

	over, ok := reports[1].(*protocol.ReportGameOver)
	require.True(t, ok, "second report must be game over")
	assert.Equal(t, uint64(7), over.ID)

	<-inst.Done()
	assert.False(t, inst.Running())
}

func TestLocalLauncherAbortCommand(t *testing.T) {
	launcher := NewLocalLauncher(DemoFactory{ServerConfig: connect.DummySetupConfig()}, testLogger())

	inst, err := launcher.Launch(context.Background(), demoPack(t, 3, "10s"))
	require.NoError(t, err)

	// first report is the start report
	first := <-inst.Reports()
	_, ok := first.(*protocol.ReportGameStart)
	require.True(t, ok)

	require.NoError(t, inst.SendCommand(&protocol.CommandAbort{}))

	second := <-inst.Reports()
	aborted, ok := second.(*protocol.ReportAborted)
	require.True(t, ok)
	assert.Equal(t, uint64(3), aborted.ID)

	<-inst.Done()
	assert.Error(t, inst.SendCommand(&protocol.CommandAbort{}), "commands to a dead instance must fail")
}

func TestRunChildEmitsReportLines(t *testing.T) {
	var stdout bytes.Buffer
	stdin := strings.NewReader("") // immediate EOF: parent never sends commands

	pack := demoPack(t, 11, "5ms", DemoMember{UserID: uuid.New(), ClientID: 2})
	factory := DemoFactory{ServerConfig: connect.DummySetupConfig()}

	// stdin EOF cancels the context, so use a factory run that finishes fast
	err := runChild(context.Background(), factory, pack, stdin, &stdout, testLogger())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.NotEmpty(t, lines)

	first, err := protocol.DecodeInstanceReport([]byte(lines[0]))
	require.NoError(t, err)
	start, ok := first.(*protocol.ReportGameStart)
	require.True(t, ok)
	assert.Equal(t, uint64(11), start.ID)

	last, err := protocol.DecodeInstanceReport([]byte(lines[len(lines)-1]))
	require.NoError(t, err)
	switch last.(type) {
	case *protocol.ReportGameOver, *protocol.ReportAborted:
	default:
		t.Fatalf("final report must terminate the stream, got %T", last)
	}
}

func TestRunChildAbortViaStdin(t *testing.T) {
	cmdLine, err := protocol.EncodeInstanceCommand(&protocol.CommandAbort{})
	require.NoError(t, err)

	var stdout bytes.Buffer
	stdin := &stallingReader{data: append(cmdLine, '\n')}

	pack := demoPack(t, 12, "10s")
	factory := DemoFactory{ServerConfig: connect.DummySetupConfig()}

	done := make(chan error, 1)
	go func() {
		done <- runChild(context.Background(), factory, pack, stdin, &stdout, testLogger())
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("child did not abort on command")
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	last, err := protocol.DecodeInstanceReport([]byte(lines[len(lines)-1]))
	require.NoError(t, err)
	aborted, ok := last.(*protocol.ReportAborted)
	require.True(t, ok)
	assert.Equal(t, uint64(12), aborted.ID)
}

// stallingReader serves its data then blocks instead of returning EOF,
// mimicking a live stdin pipe.
type stallingReader struct {
	data []byte
}

func (r *stallingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		select {} // block forever
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}
