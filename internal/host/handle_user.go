// internal/host/handle_user.go
package host

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/lobby"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// HandleUserConnected registers a user and, if they belong to an ongoing
// game, reconnects them with an unsolicited GameStart.
func (s *State) HandleUserConnected(userID uuid.UUID, env connect.ClientEnv) {
	if err := s.Users.AddUser(userID, env); err != nil {
		// the user is still registered; keep the existing entry and treat
		// this as a transport-level reconnect
		s.log.WithField("user_id", userID).Debug("user already registered on connect")
	} else {
		s.log.WithFields(logrus.Fields{"user_id": userID, "env": env}).Trace("registered user")
	}

	if state, ok := s.Users.UserState(userID); ok && state.Kind == UserIdle {
		if s.tryConnectUserToGame(userID) {
			s.log.WithField("user_id", userID).Trace("reconnected user to game")
		}
	}
}

// HandleUserDisconnected force-nacks any pending lobby, removes the user
// from any lobby, and unregisters them. In-game users stay recorded in the
// ongoing-games cache and are reconnected to their game when they register
// again.
func (s *State) HandleUserDisconnected(userID uuid.UUID) {
	if s.forceNackPendingLobby(userID, nil) {
		s.log.WithField("user_id", userID).Trace("force nacked pending lobby while unregistering user")
	}
	if s.tryRemoveUserFromLobby(userID, nil) {
		s.log.WithField("user_id", userID).Trace("removed user from lobby while unregistering user")
	}
	if s.tryRemoveUserFromCache(userID) {
		s.log.WithField("user_id", userID).Trace("unregistered user")
	}
}

// HandleUserMsg dispatches one inbound user message. Protocol-state
// violations are logged and dropped; validation failures answer with a
// Reject bound to the request id.
func (s *State) HandleUserMsg(userID uuid.UUID, reqID uint64, msg protocol.UserToHost) {
	if !s.Users.HasUser(userID) {
		s.log.WithField("user_id", userID).Warn("message from unregistered user")
		return
	}

	switch m := msg.(type) {
	case *protocol.MakeLobby:
		s.userMakeLobby(userID, reqID, m)
	case *protocol.JoinLobby:
		s.userJoinLobby(userID, reqID, m)
	case *protocol.LeaveLobby:
		s.userLeaveLobby(userID, reqID, m.ID)
	case *protocol.LaunchLobbyGame:
		s.userLaunchLobbyGame(userID, reqID, m.ID)
	case *protocol.AckPendingLobby:
		s.userAckPendingLobby(userID, reqID, m.ID)
	case *protocol.NackPendingLobby:
		s.userNackPendingLobby(userID, reqID, m.ID)
	case *protocol.GetConnectToken:
		s.userGetConnectToken(userID, reqID, m.ID)
	case *protocol.LobbySearch:
		s.userLobbySearch(userID, reqID, m.Request)
	case *protocol.ResetLobby:
		s.userResetLobby(userID, reqID)
	default:
		s.log.WithFields(logrus.Fields{"user_id": userID, "type": msg.MsgType()}).Warn("unhandled user message")
	}
}

func (s *State) userMakeLobby(userID uuid.UUID, reqID uint64, m *protocol.MakeLobby) {
	state, ok := s.Users.UserState(userID)
	if !ok || state.Kind != UserIdle {
		s.log.WithField("user_id", userID).Trace("could not make lobby, user is not idle")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}

	env, ok := s.Users.UserEnv(userID)
	if !ok {
		s.log.WithField("user_id", userID).Error("failed getting user env")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	memberData := lobby.MemberData{Env: env, Color: m.Color}

	lobbyID, err := s.Lobbies.NewLobby(userID, memberData, m.Password, m.CustomData)
	if err != nil {
		s.log.WithField("user_id", userID).Trace("failed making new lobby")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}

	l, ok := s.Lobbies.Lobby(lobbyID)
	if !ok {
		s.log.WithFields(logrus.Fields{"lobby_id": lobbyID, "user_id": userID}).Error("new lobby missing from cache")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	s.sendLobbyJoinAndUpdateState(reqID, userID, &l.Data)
}

func (s *State) userJoinLobby(userID uuid.UUID, reqID uint64, m *protocol.JoinLobby) {
	state, ok := s.Users.UserState(userID)
	if !ok || state.Kind != UserIdle {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": m.ID}).Trace("could not join lobby, user is not idle")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}

	env, ok := s.Users.UserEnv(userID)
	if !ok {
		s.log.WithField("user_id", userID).Error("failed getting user env")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	memberData := lobby.MemberData{Env: env, Color: m.Color}

	if !s.Lobbies.TryAddMember(m.ID, userID, memberData, m.Password) {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": m.ID}).Trace("join request rejected")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}

	l, ok := s.Lobbies.Lobby(m.ID)
	if !ok {
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	s.sendLobbyJoinAndUpdateState(reqID, userID, &l.Data)
	s.sendLobbyState(&l.Data)
}

func (s *State) userLeaveLobby(userID uuid.UUID, reqID uint64, lobbyID uint64) {
	// if the lobby is mid-launch and not yet fully acked, leaving nacks it
	nacked := s.tryNackPendingLobby(userID, lobbyID)
	removed := s.tryRemoveUserFromLobby(userID, &lobbyID)
	if nacked || removed {
		s.out.ToUser(userID, reqID, &protocol.Ack{})
		return
	}
	s.out.ToUser(userID, reqID, &protocol.Reject{})
}

func (s *State) userLaunchLobbyGame(userID uuid.UUID, reqID uint64, lobbyID uint64) {
	state, ok := s.Users.UserState(userID)
	if !ok || state.Kind != UserInLobby || state.ID != lobbyID {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Trace("failed launching game, user is not in the lobby")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}

	l, ok := s.Lobbies.Lobby(lobbyID)
	if !ok {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Error("user's lobby is missing")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	if !l.IsOwner(userID) {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Trace("failed launching game, user is not lobby owner")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	if !s.Lobbies.Checker().CanLaunch(l) {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Trace("failed launching game, checker rejected launch")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}

	extracted, ok := s.Lobbies.ExtractLobby(lobbyID)
	if !ok {
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	if err := s.Pending.AddLobby(extracted); err != nil {
		s.log.WithField("lobby_id", lobbyID).Error("failed adding lobby to pending cache")
		if insErr := s.Lobbies.InsertLobby(extracted); insErr != nil {
			s.sendLobbyLeaveAndSetIdle(&extracted.Data)
		}
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}

	s.sendPendingAckRequestsAndUpdateStates(&extracted.Data)
	s.out.ToUser(userID, reqID, &protocol.Ack{})
}

func (s *State) userAckPendingLobby(userID uuid.UUID, reqID uint64, lobbyID uint64) {
	if !s.tryAckPendingLobby(userID, lobbyID) {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Trace("ack rejected")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	s.out.ToUser(userID, reqID, &protocol.Ack{})

	// if that was the last ack, negotiate a hub
	s.attemptGameStartRequest(userID, lobbyID)
}

func (s *State) userNackPendingLobby(userID uuid.UUID, reqID uint64, lobbyID uint64) {
	if !s.tryNackPendingLobby(userID, lobbyID) {
		s.log.WithFields(logrus.Fields{"user_id": userID, "lobby_id": lobbyID}).Trace("nack rejected")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	s.out.ToUser(userID, reqID, &protocol.Ack{})
}

func (s *State) userGetConnectToken(userID uuid.UUID, reqID uint64, gameID uint64) {
	state, ok := s.Users.UserState(userID)
	if !ok || state.Kind != UserInGame || state.ID != gameID {
		s.log.WithFields(logrus.Fields{"user_id": userID, "game_id": gameID}).Trace("connect token request rejected, user not in that game")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}

	env, ok := s.Users.UserEnv(userID)
	if !ok {
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	id, token, _, err := s.Ongoing.UserStartInfo(userID, env)
	if err != nil || id != gameID {
		s.log.WithFields(logrus.Fields{"user_id": userID, "game_id": gameID}).Error("failed minting connect token for in-game user")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	s.out.ToUser(userID, reqID, &protocol.ConnectToken{ID: gameID, Token: token})
}

func (s *State) userLobbySearch(userID uuid.UUID, reqID uint64, req lobby.SearchRequest) {
	result := s.Lobbies.Search(req)
	s.out.ToUser(userID, reqID, &protocol.LobbySearchResult{Result: result})
}

func (s *State) userResetLobby(userID uuid.UUID, reqID uint64) {
	if state, ok := s.Users.UserState(userID); ok && state.Kind == UserInGame {
		s.log.WithField("user_id", userID).Trace("unable to reset lobby state, user is in-game")
		s.out.ToUser(userID, reqID, &protocol.Reject{})
		return
	}
	if s.forceNackPendingLobby(userID, nil) {
		s.log.WithField("user_id", userID).Trace("force nacked pending lobby while resetting lobby state")
	}
	if s.tryRemoveUserFromLobby(userID, nil) {
		s.log.WithField("user_id", userID).Trace("removed user from lobby while resetting lobby state")
	}
	s.out.ToUser(userID, reqID, &protocol.Ack{})
}
