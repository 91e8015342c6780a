// internal/protocol/envelope_test.go
package protocol

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/arena/internal/lobby"
)

func TestUserToHostRoundTrip(t *testing.T) {
	raw, err := EncodeUserToHost(7, &JoinLobby{ID: 3, Color: 1, Password: "pw"})
	require.NoError(t, err)

	reqID, msg, err := DecodeUserToHost(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), reqID)

	join, ok := msg.(*JoinLobby)
	require.True(t, ok)
	assert.Equal(t, uint64(3), join.ID)
	assert.Equal(t, "pw", join.Password)
}

func TestHostToUserCarriesRequestID(t *testing.T) {
	raw, err := EncodeHostToUser(11, &Reject{})
	require.NoError(t, err)

	reqID, msg, err := DecodeHostToUser(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), reqID)
	assert.IsType(t, &Reject{}, msg)
}

func TestHubToHostVariants(t *testing.T) {
	owner := uuid.New()
	req := GameStartRequest{LobbyData: lobby.Data{
		ID:      5,
		OwnerID: owner,
		Members: []lobby.Member{{UserID: owner}},
	}}

	raw, err := EncodeHubToHost(&HubGameStart{
		ID:      5,
		Request: req,
		Report:  GameStartReport{StartInfos: []GameStartInfo{{UserID: owner, ClientID: 1}}},
	})
	require.NoError(t, err)

	msg, err := DecodeHubToHost(raw)
	require.NoError(t, err)
	start, ok := msg.(*HubGameStart)
	require.True(t, ok)
	assert.Equal(t, uint64(5), start.ID)
	assert.True(t, start.Request.LobbyData.Equal(&req.LobbyData))
	require.Len(t, start.Report.StartInfos, 1)
	assert.Equal(t, owner, start.Report.StartInfos[0].UserID)
}

func TestInstanceReportLines(t *testing.T) {
	raw, err := EncodeInstanceReport(&ReportAborted{ID: 9})
	require.NoError(t, err)

	msg, err := DecodeInstanceReport(raw)
	require.NoError(t, err)
	aborted, ok := msg.(*ReportAborted)
	require.True(t, ok)
	assert.Equal(t, uint64(9), aborted.ID)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, _, err := DecodeUserToHost([]byte(`{"type":"bogus"}`))
	assert.Error(t, err)

	_, err = DecodeHubToHost([]byte(`not json`))
	assert.Error(t, err)
}
