// internal/host/ws_test.go
package host

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/arena/internal/auth"
	"github.com/jason-s-yu/arena/internal/client"
	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/hub"
	"github.com/jason-s-yu/arena/internal/instance"
	"github.com/jason-s-yu/arena/internal/lobby"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// awaitMsg reads from the client's message stream until a message of type T
// arrives or the timeout fires.
func awaitMsg[T protocol.HostToUser](t *testing.T, c *client.Client, timeout time.Duration) T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case incoming, ok := <-c.Messages:
			require.True(t, ok, "connection closed while waiting for message")
			if msg, match := incoming.Msg.(T); match {
				return msg
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// TestFullStackGameLifecycle drives a real websocket topology end to end:
// host gateway, one hub with an in-process game, and two user clients.
func TestFullStackGameLifecycle(t *testing.T) {
	auth.Init()
	log := testLogger()

	// host
	gateway := NewGateway(log)
	state := NewState(StateConfig{
		Lobbies: lobby.CacheConfig{
			MaxRequestSize: 10,
			Checker:        lobby.BasicChecker{MaxMembers: 4, MinPlayersToLaunch: 2},
		},
		Pending:  lobby.PendingConfig{AckTimeout: 10 * time.Second, StartBuffer: 3 * time.Second},
		Ongoing:  OngoingGamesCacheConfig{ExpiryDuration: time.Minute},
		DCBuffer: DisconnectBufferConfig{ExpiryDuration: 5 * time.Second},
	}, gateway, log, nil)
	hostSrv := NewServer(ServerConfig{TicksPerSec: 50, OngoingGamePurgePeriodTicks: 1}, state, log)
	gateway.Bind(hostSrv)

	mux := http.NewServeMux()
	mux.Handle("/ws/user", gateway.UserHandler())
	mux.Handle("/ws/hub", gateway.HubHandler())
	httpSrv := httptest.NewServer(mux)
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hostSrv.Run(ctx)

	// hub with an in-process demo game
	hubID := uuid.New()
	hubToken, err := auth.CreateHubJWT(hubID)
	require.NoError(t, err)
	hostClient := hub.NewHostClient(wsURL+"/ws/hub", hubToken, log)
	hubSrv := hub.NewServer(hub.ServerConfig{
		TicksPerSec:                 50,
		InitialMaxCapacity:          1,
		RunningGamePurgePeriodTicks: 1,
		LaunchPackTimeout:           2 * time.Second,
		PendingGames:                hub.PendingGamesCacheConfig{ExpiryDuration: 10 * time.Second},
		RunningGames:                hub.RunningGamesCacheConfig{ExpiryDuration: time.Minute},
	}, hub.DemoLaunchPackSource{GameDuration: "200ms"},
		instance.NewLocalLauncher(instance.DemoFactory{ServerConfig: connect.DummySetupConfig()}, log),
		hostClient, log, nil)
	hostClient.Bind(hubSrv)
	go hostClient.Run(ctx)
	go hubSrv.Run(ctx)

	// two users
	dial := func(userID uuid.UUID) *client.Client {
		token, err := auth.CreateUserJWT(userID, connect.EnvNative)
		require.NoError(t, err)
		c, err := client.Dial(ctx, wsURL+"/ws/user", token, log)
		require.NoError(t, err)
		return c
	}
	userA, userB := uuid.New(), uuid.New()
	clientA := dial(userA)
	defer clientA.Close()
	clientB := dial(userB)
	defer clientB.Close()

	// A creates a lobby
	_, err = clientA.Send(ctx, &protocol.MakeLobby{Password: "test"})
	require.NoError(t, err)
	join := awaitMsg[*protocol.LobbyJoin](t, clientA, 5*time.Second)
	lobbyID := join.Lobby.ID

	// B joins with the right password
	_, err = clientB.Send(ctx, &protocol.JoinLobby{ID: lobbyID, Password: "test"})
	require.NoError(t, err)
	joinB := awaitMsg[*protocol.LobbyJoin](t, clientB, 5*time.Second)
	assert.Equal(t, lobbyID, joinB.Lobby.ID)
	assert.Len(t, joinB.Lobby.Members, 2)

	// A launches; both receive ack requests and ack
	_, err = clientA.Send(ctx, &protocol.LaunchLobbyGame{ID: lobbyID})
	require.NoError(t, err)
	awaitMsg[*protocol.PendingLobbyAckRequest](t, clientA, 5*time.Second)
	awaitMsg[*protocol.PendingLobbyAckRequest](t, clientB, 5*time.Second)
	_, err = clientA.Send(ctx, &protocol.AckPendingLobby{ID: lobbyID})
	require.NoError(t, err)
	_, err = clientB.Send(ctx, &protocol.AckPendingLobby{ID: lobbyID})
	require.NoError(t, err)

	// the hub launches the demo game; both users get start info
	startA := awaitMsg[*protocol.GameStart](t, clientA, 10*time.Second)
	startB := awaitMsg[*protocol.GameStart](t, clientB, 10*time.Second)
	assert.Equal(t, lobbyID, startA.ID)
	assert.Equal(t, lobbyID, startB.ID)
	assert.NotEmpty(t, startA.Token.Token)
	assert.NotEqual(t, startA.StartInfo.ClientID, startB.StartInfo.ClientID)

	// the demo game ends on its own; both users get the report
	overA := awaitMsg[*protocol.GameOver](t, clientA, 10*time.Second)
	assert.Equal(t, lobbyID, overA.ID)
	awaitMsg[*protocol.GameOver](t, clientB, 10*time.Second)
}

// TestGatewayRejectsBadAuth covers the upgrade-time checks.
func TestGatewayRejectsBadAuth(t *testing.T) {
	auth.Init()
	log := testLogger()

	gateway := NewGateway(log)
	state := NewState(StateConfig{
		Lobbies: lobby.CacheConfig{
			MaxRequestSize: 10,
			Checker:        lobby.BasicChecker{MaxMembers: 4, MinPlayersToLaunch: 1},
		},
		Pending:  lobby.PendingConfig{AckTimeout: time.Second, StartBuffer: time.Second},
		Ongoing:  OngoingGamesCacheConfig{ExpiryDuration: time.Minute},
		DCBuffer: DisconnectBufferConfig{ExpiryDuration: time.Second},
	}, gateway, log, nil)
	hostSrv := NewServer(ServerConfig{}, state, log)
	gateway.Bind(hostSrv)

	mux := http.NewServeMux()
	mux.Handle("/ws/user", gateway.UserHandler())
	httpSrv := httptest.NewServer(mux)
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// garbage token: the server closes the connection during/after upgrade,
	// so either the dial or the first read fails
	c, err := client.Dial(ctx, wsURL+"/ws/user", "garbage", testLogger())
	if err == nil {
		select {
		case _, ok := <-c.Messages:
			assert.False(t, ok, "connection with bad auth must be closed")
		case <-time.After(2 * time.Second):
			t.Fatal("connection with bad auth was not closed")
		}
		c.Close()
	}

	// hub token on the user endpoint is refused the same way
	hubToken, err := auth.CreateHubJWT(uuid.New())
	require.NoError(t, err)
	c, err = client.Dial(ctx, wsURL+"/ws/user", hubToken, testLogger())
	if err == nil {
		select {
		case _, ok := <-c.Messages:
			assert.False(t, ok, "hub token on user endpoint must be refused")
		case <-time.After(2 * time.Second):
			t.Fatal("hub token on user endpoint was not refused")
		}
		c.Close()
	}
}
