// internal/host/state.go
package host

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/lobby"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// Outbox delivers outbound protocol messages. The websocket front-end
// implements it for production; tests install a capture.
type Outbox interface {
	// ToUser sends a message to a user. reqID is nonzero when the message
	// answers a specific request.
	ToUser(userID uuid.UUID, reqID uint64, msg protocol.HostToUser)
	// ToHub sends a message to a game hub.
	ToHub(hubID uuid.UUID, msg protocol.HostToHub)
}

// State aggregates every cache the host owns. It is owned by the tick loop;
// handlers receive it by pointer and complete synchronously against it.
type State struct {
	log *logrus.Logger

	Lobbies  *lobby.Cache
	Pending  *lobby.PendingCache
	Ongoing  *OngoingGamesCache
	Hubs     *GameHubsCache
	Users    *UsersCache
	DCBuffer *DisconnectBuffer

	out Outbox
	now func() time.Time
}

// StateConfig bundles the per-cache configs for NewState.
type StateConfig struct {
	Lobbies  lobby.CacheConfig
	Pending  lobby.PendingConfig
	Ongoing  OngoingGamesCacheConfig
	DCBuffer DisconnectBufferConfig
}

// NewState builds the host's caches around a shared clock and outbox.
func NewState(config StateConfig, out Outbox, log *logrus.Logger, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{
		log:      log,
		Lobbies:  lobby.NewCache(config.Lobbies, log),
		Pending:  lobby.NewPendingCache(config.Pending, log, now),
		Ongoing:  NewOngoingGamesCache(config.Ongoing, log, now),
		Hubs:     NewGameHubsCache(log),
		Users:    NewUsersCache(log),
		DCBuffer: NewDisconnectBuffer(config.DCBuffer, log, now),
		out:      out,
		now:      now,
	}
}

// hubIsRegistered treats buffered (recently disconnected) hubs as still
// registered so in-flight work can resolve.
func (s *State) hubIsRegistered(hubID uuid.UUID) bool {
	return s.Hubs.HasHub(hubID) || s.DCBuffer.HasHub(hubID)
}

// sendLobbyJoinAndUpdateState answers a successful make/join request and
// moves the user into the lobby.
func (s *State) sendLobbyJoinAndUpdateState(reqID uint64, userID uuid.UUID, data *lobby.Data) {
	s.out.ToUser(userID, reqID, &protocol.LobbyJoin{Lobby: data.Clone()})
	if err := s.Users.UpdateUserState(userID, InLobby(data.ID)); err != nil {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": data.ID}).Error("failed updating user state to in-lobby")
	}
}

// sendLobbyLeaveAndSetIdle kicks every member out of a dead lobby.
func (s *State) sendLobbyLeaveAndSetIdle(data *lobby.Data) {
	for _, member := range data.Members {
		s.out.ToUser(member.UserID, 0, &protocol.LobbyLeave{ID: data.ID})
		if err := s.Users.UpdateUserState(member.UserID, Idle()); err != nil {
			s.log.WithField("user_id", member.UserID).Error("failed updating user state to idle")
		}
	}
}

// sendLobbyState broadcasts the lobby's membership to all members.
func (s *State) sendLobbyState(data *lobby.Data) {
	for _, member := range data.Members {
		s.out.ToUser(member.UserID, 0, &protocol.LobbyState{Lobby: data.Clone()})
	}
}

// sendPendingAckRequestsAndUpdateStates starts the ack phase for every
// member of a freshly launched lobby.
func (s *State) sendPendingAckRequestsAndUpdateStates(data *lobby.Data) {
	for _, member := range data.Members {
		s.out.ToUser(member.UserID, 0, &protocol.PendingLobbyAckRequest{ID: data.ID})
		if err := s.Users.UpdateUserState(member.UserID, InPendingLobby(data.ID)); err != nil {
			s.log.WithFields(logrus.Fields{"user_id": member.UserID, "lobby_id": data.ID}).Error("failed updating user state to in-pending-lobby")
		}
	}
}

// sendPendingAckFailsAndUpdateStates tells members the launch failed and
// puts them back in the (reinstated) lobby.
func (s *State) sendPendingAckFailsAndUpdateStates(data *lobby.Data) {
	for _, member := range data.Members {
		s.out.ToUser(member.UserID, 0, &protocol.PendingLobbyAckFail{ID: data.ID})
		if err := s.Users.UpdateUserState(member.UserID, InLobby(data.ID)); err != nil {
			s.log.WithFields(logrus.Fields{"user_id": member.UserID, "lobby_id": data.ID}).Error("failed updating user state to in-lobby")
		}
	}
}

// sendGameAbortsAndSetIdle notifies a dead game's members.
func (s *State) sendGameAbortsAndSetIdle(gameID uint64, startInfos []protocol.GameStartInfo) {
	for _, info := range startInfos {
		s.out.ToUser(info.UserID, 0, &protocol.GameAborted{ID: gameID})
		if err := s.Users.UpdateUserState(info.UserID, Idle()); err != nil {
			s.log.WithFields(logrus.Fields{"user_id": info.UserID, "game_id": gameID}).Error("failed updating user state to idle")
		}
	}
}

// sendGameOverAndSetIdle forwards the final report to members still in the
// game.
func (s *State) sendGameOverAndSetIdle(gameID uint64, report protocol.GameOverReport, startInfos []protocol.GameStartInfo) {
	for _, info := range startInfos {
		state, ok := s.Users.UserState(info.UserID)
		if !ok || state.Kind != UserInGame {
			s.log.WithFields(logrus.Fields{"user_id": info.UserID, "game_id": gameID}).Warn("game over report for user not in a game")
			continue
		}
		if state.ID != gameID {
			s.log.WithFields(logrus.Fields{"user_id": info.UserID, "game_id": gameID, "in_game_id": state.ID}).Warn("game over report for user in a different game")
			continue
		}
		s.out.ToUser(info.UserID, 0, &protocol.GameOver{ID: gameID, Report: report})
		if err := s.Users.UpdateUserState(info.UserID, Idle()); err != nil {
			s.log.WithFields(logrus.Fields{"user_id": info.UserID, "game_id": gameID}).Error("failed updating user state to idle")
		}
	}
}

// handleAckFailure reinstates a failed pending lobby as an open lobby and
// tells the members. If reinsertion fails the members are kicked instead.
func (s *State) handleAckFailure(l *lobby.Lobby) {
	s.sendPendingAckFailsAndUpdateStates(&l.Data)
	if err := s.Lobbies.InsertLobby(l); err != nil {
		s.log.WithField("lobby_id", l.ID()).Error("failed inserting former pending lobby")
		s.sendLobbyLeaveAndSetIdle(&l.Data)
	}
}

// tryConnectUserToGame sends game-start info if the ongoing-games cache
// knows the user. Returns true if the user is now (or already was) in-game.
func (s *State) tryConnectUserToGame(userID uuid.UUID) bool {
	if state, ok := s.Users.UserState(userID); ok && state.Kind == UserInGame {
		s.log.WithField("user_id", userID).Warn("trying to connect a user that is already in-game")
		return true
	}

	env, ok := s.Users.UserEnv(userID)
	if !ok {
		return false
	}
	gameID, token, startInfo, err := s.Ongoing.UserStartInfo(userID, env)
	if err != nil {
		return false
	}

	s.out.ToUser(userID, 0, &protocol.GameStart{ID: gameID, Token: token, StartInfo: startInfo})
	if err := s.Users.UpdateUserState(userID, InGame(gameID)); err != nil {
		s.log.WithFields(logrus.Fields{"user_id": userID, "game_id": gameID}).Error("failed updating user state to in-game")
	}
	return true
}

// tryAckPendingLobby validates and records a member's ack.
func (s *State) tryAckPendingLobby(userID uuid.UUID, lobbyID uint64) bool {
	state, ok := s.Users.UserState(userID)
	if !ok || state.Kind != UserInPendingLobby {
		return false
	}
	if state.ID != lobbyID {
		return false
	}
	return s.Pending.AddUserAck(lobbyID, userID) == nil
}

// tryNackPendingLobby handles a user-initiated nack. A fully-acked lobby is
// negotiating with a hub, so nacking it is forbidden (users could otherwise
// abuse nacks to waste hub resources).
func (s *State) tryNackPendingLobby(userID uuid.UUID, lobbyID uint64) bool {
	state, ok := s.Users.UserState(userID)
	if !ok || state.Kind != UserInPendingLobby {
		return false
	}
	if state.ID != lobbyID {
		return false
	}
	if _, fullyAcked := s.Pending.TryGetFullAckedLobby(lobbyID); fullyAcked {
		return false
	}
	l, err := s.Pending.RemoveNackedLobby(lobbyID, userID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"lobby_id": lobbyID, "user_id": userID}).Error("could not find expected pending lobby to nack")
		return false
	}
	s.handleAckFailure(l)
	return true
}

// forceNackPendingLobby is tryNackPendingLobby without the fully-acked
// guard. nackID narrows which lobby may be nacked; nil accepts whichever
// pending lobby the user is in.
func (s *State) forceNackPendingLobby(userID uuid.UUID, nackID *uint64) bool {
	state, ok := s.Users.UserState(userID)
	if !ok || state.Kind != UserInPendingLobby {
		return false
	}
	if nackID != nil && state.ID != *nackID {
		return false
	}
	l, err := s.Pending.RemoveNackedLobby(state.ID, userID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"lobby_id": state.ID, "user_id": userID}).Error("could not find expected pending lobby to force nack")
		return false
	}
	s.handleAckFailure(l)
	return true
}

// tryRemoveUserFromLobby removes a user from their open lobby. If the user
// owns the lobby, the lobby is destroyed and everyone is kicked.
func (s *State) tryRemoveUserFromLobby(userID uuid.UUID, removeID *uint64) bool {
	state, ok := s.Users.UserState(userID)
	if !ok || state.Kind != UserInLobby {
		return false
	}
	lobbyID := state.ID
	if removeID != nil && lobbyID != *removeID {
		return false
	}

	l, exists := s.Lobbies.Lobby(lobbyID)
	if !exists {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Error("user's lobby is missing")
		return false
	}

	if l.IsOwner(userID) {
		s.sendLobbyLeaveAndSetIdle(&l.Data)
		if _, ok := s.Lobbies.ExtractLobby(lobbyID); !ok {
			s.log.WithField("lobby_id", lobbyID).Error("failed removing lobby after owner left")
		}
		return true
	}

	if !l.RemoveMember(userID) {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Error("failed removing non-owner member from lobby")
	}
	if err := s.Users.UpdateUserState(userID, Idle()); err != nil {
		s.log.WithField("user_id", userID).Error("failed setting user state to idle")
	}
	s.out.ToUser(userID, 0, &protocol.LobbyLeave{ID: lobbyID})
	s.sendLobbyState(&l.Data)
	return true
}

// tryRemoveUserFromCache unregisters a user unless they are mid-lobby.
// In-game users are removed too: the ongoing-games cache preserves their
// membership, so a later reconnect re-registers them and rejoins the game.
func (s *State) tryRemoveUserFromCache(userID uuid.UUID) bool {
	state, ok := s.Users.UserState(userID)
	if !ok {
		s.log.WithField("user_id", userID).Error("could not remove user from cache, user has no state")
		return false
	}
	switch state.Kind {
	case UserInLobby, UserInPendingLobby:
		return false
	}
	if err := s.Users.RemoveUser(userID); err != nil {
		s.log.WithField("user_id", userID).Error("user not in users cache as expected")
	}
	return true
}

// tryRequestGameStart asks the best hub to start the lobby's game. Returns
// (false, nil) if the lobby is not ready, (true, nil) on success, and an
// error when no hub can take the game.
func (s *State) tryRequestGameStart(userID uuid.UUID, lobbyID uint64) (bool, error) {
	state, ok := s.Users.UserState(userID)
	if !ok || state.Kind != UserInPendingLobby {
		s.log.WithField("user_id", userID).Warn("could not request game start, user is not in pending lobby")
		return false, nil
	}
	if state.ID != lobbyID {
		return false, nil
	}

	// sanity check: the game should not be ongoing already
	if s.Ongoing.HasGame(lobbyID) {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Error("pending lobby already has an ongoing game")
		return false, errGameAlreadyOngoing
	}

	data, fullyAcked := s.Pending.TryGetFullAckedLobby(lobbyID)
	if !fullyAcked {
		return false, nil
	}

	hubID, ok := s.Hubs.HighestCapacityHub()
	if !ok {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Warn("could not request game start, no available game hubs")
		return false, errNoAvailableHub
	}

	// The hub can already have this game if the lobby expired post-start and
	// was re-acked. Don't double-send; the earlier request stands.
	if s.Hubs.HasPendingGame(hubID, lobbyID) {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "lobby_id": lobbyID}).Warn("skipped game start request, hub already has game")
		return true, nil
	}

	s.out.ToHub(hubID, &protocol.StartGame{Request: protocol.GameStartRequest{LobbyData: data.Clone()}})
	if err := s.Hubs.AddPendingGame(hubID, lobbyID); err != nil {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "lobby_id": lobbyID}).Error("hub cache pending game insertion error")
		return false, err
	}
	return true, nil
}

// attemptGameStartRequest runs tryRequestGameStart and compensates on hard
// failure by force-nacking the pending lobby.
func (s *State) attemptGameStartRequest(userID uuid.UUID, lobbyID uint64) {
	started, err := s.tryRequestGameStart(userID, lobbyID)
	if err == nil {
		if started {
			s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Trace("requested game start for pending lobby")
		}
		return
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Warn("game start request failed, aborting pending lobby")
	if !s.forceNackPendingLobby(userID, &lobbyID) {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Error("failed aborting pending lobby")
	}
}

// tryAbortHubPendingGame handles a hub abort for a game still pending. The
// lobby (if still fully acked) gets another chance on a different hub.
func (s *State) tryAbortHubPendingGame(hubID uuid.UUID, gameID uint64) bool {
	// remove the pending reservation first in case the lobby expired
	if err := s.Hubs.RemovePendingGame(hubID, gameID); err != nil {
		return false
	}
	data, ok := s.Pending.TryGetFullAckedLobby(gameID)
	if !ok {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Warn("aborted pending game has no pending lobby")
		return true
	}
	s.attemptGameStartRequest(data.OwnerID, data.ID)
	return true
}

// tryAbortHubOngoingGame handles a hub abort for a running game: the game is
// dropped and its members notified.
func (s *State) tryAbortHubOngoingGame(hubID uuid.UUID, gameID uint64) bool {
	if err := s.Hubs.RemoveGame(hubID, gameID); err != nil {
		return false
	}
	deadGame, err := s.Ongoing.RemoveOngoingGame(gameID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Error("could not remove aborted ongoing game")
		return false
	}
	s.sendGameAbortsAndSetIdle(gameID, deadGame.StartInfos)
	return true
}
