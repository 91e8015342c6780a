// internal/host/handle_hub.go
package host

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/protocol"
)

var (
	errNoAvailableHub     = errors.New("no game hub with available capacity")
	errGameAlreadyOngoing = errors.New("game already ongoing")
)

// HandleHubConnected registers a hub, or recognizes a reconnect if the hub
// is in the disconnect buffer. Capacity starts at zero either way; the hub
// pushes a fresh Capacity report after connecting.
func (s *State) HandleHubConnected(hubID uuid.UUID) {
	buffered := s.DCBuffer.RemoveHub(hubID) == nil
	registered := s.Hubs.InsertHub(hubID) == nil

	switch {
	case buffered && !registered:
		s.log.WithField("hub_id", hubID).Info("game hub reconnected")
	case !buffered && registered:
		s.log.WithField("hub_id", hubID).Info("registered game hub")
	case buffered && registered:
		s.log.WithField("hub_id", hubID).Error("connected hub was buffered but not in hubs cache")
	default:
		s.log.WithField("hub_id", hubID).Warn("failed registering connected game hub")
	}
}

// HandleHubDisconnected buffers the hub and zeroes its capacity so the
// selector skips it while its games wait out the grace period.
func (s *State) HandleHubDisconnected(hubID uuid.UUID) {
	if err := s.DCBuffer.AddHub(hubID); err != nil {
		s.log.WithField("hub_id", hubID).Error("hub disconnected but already in disconnect buffer")
	} else {
		s.log.WithField("hub_id", hubID).Info("hub added to disconnect buffer")
	}
	if err := s.Hubs.SetCapacity(hubID, 0); err != nil {
		s.log.WithField("hub_id", hubID).Error("failed zeroing capacity of disconnected hub")
	}
}

// unregisterHub forcibly removes a hub whose disconnect grace expired:
// every ongoing game it owned is aborted and the affected users notified.
func (s *State) unregisterHub(hubID uuid.UUID) {
	if s.DCBuffer.HasHub(hubID) {
		s.log.WithField("hub_id", hubID).Error("ignoring unregister for hub still in disconnect buffer")
		return
	}

	// Connection info for games on an offline hub is useless; dropping the
	// games now frees their users instead of leaving them stuck InGame.
	gameIDs, err := s.Hubs.DrainGames(hubID)
	if err != nil {
		s.log.WithField("hub_id", hubID).Error("unable to drain games while unregistering hub")
	}
	for _, gameID := range gameIDs {
		deadGame, err := s.Ongoing.RemoveOngoingGame(gameID)
		if err != nil {
			s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Error("could not remove game while unregistering hub")
			continue
		}
		if deadGame.HubID != hubID {
			s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Error("hub id mismatch while unregistering hub")
		}
		s.sendGameAbortsAndSetIdle(gameID, deadGame.StartInfos)
	}

	if err := s.Hubs.RemoveHub(hubID); err != nil {
		s.log.WithField("hub_id", hubID).Error("unable to remove hub while unregistering")
	} else {
		s.log.WithField("hub_id", hubID).Info("unregistered game hub")
	}
}

// HandleHubMsg dispatches one inbound hub message.
func (s *State) HandleHubMsg(hubID uuid.UUID, msg protocol.HubToHost) {
	if !s.hubIsRegistered(hubID) {
		s.log.WithField("hub_id", hubID).Warn("message from unregistered hub")
		return
	}

	switch m := msg.(type) {
	case *protocol.Capacity:
		s.hubUpdateCapacity(hubID, m.N)
	case *protocol.HubGameStart:
		s.hubStartGame(hubID, m)
	case *protocol.HubGameOver:
		s.hubGameOver(hubID, m.ID, m.Report)
	case *protocol.HubAbort:
		s.hubAbortGame(hubID, m.ID)
	default:
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "type": msg.MsgType()}).Warn("unhandled hub message")
	}
}

func (s *State) hubUpdateCapacity(hubID uuid.UUID, capacity uint16) {
	// a buffered hub is pinned at zero until it reconnects
	if s.DCBuffer.HasHub(hubID) {
		s.log.WithField("hub_id", hubID).Error("ignoring capacity report from buffered hub")
		return
	}
	if err := s.Hubs.SetCapacity(hubID, capacity); err != nil {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "capacity": capacity}).Error("failed updating hub capacity")
	}
}

// hubStartGame verifies a launch confirmation against the pending entry and
// the cached lobby, then promotes the game to ongoing and connects every
// member. Any verification failure answers with AbortGame.
func (s *State) hubStartGame(hubID uuid.UUID, m *protocol.HubGameStart) {
	gameID := m.ID

	abort := func(reason string) {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Warn(reason)
		s.out.ToHub(hubID, &protocol.AbortGame{ID: gameID})
	}

	if !s.Hubs.HasPendingGame(hubID, gameID) {
		abort("aborting game, not registered as pending on hub")
		return
	}
	data, fullyAcked := s.Pending.TryGetFullAckedLobby(gameID)
	if !fullyAcked {
		abort("aborting game, lobby is unavailable")
		return
	}
	// lobby contents can change if the pending lobby expired post-ack, the
	// members changed, and the lobby re-acked
	if !m.Request.LobbyData.Equal(data) {
		abort("aborting game, request lobby data does not match cached lobby")
		return
	}

	ongoing := OngoingGame{
		GameID:     gameID,
		HubID:      hubID,
		Metas:      m.Report.Metas,
		StartInfos: m.Report.StartInfos,
	}
	if err := s.Ongoing.AddOngoingGame(ongoing); err != nil {
		abort("aborting game, registering ongoing game failed")
		return
	}
	if err := s.Hubs.UpgradePendingGame(hubID, gameID); err != nil {
		abort("aborting game, upgrading pending game failed")
		return
	}

	// extract the pending lobby after registration so a failure above keeps
	// the lobby alive
	l, err := s.Pending.RemoveLobby(gameID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Error("failed extracting pending lobby")
		return
	}

	for _, member := range l.Data.Members {
		if !s.tryConnectUserToGame(member.UserID) {
			s.log.WithFields(logrus.Fields{"user_id": member.UserID, "game_id": gameID}).Error("failed connecting user to new game")
		}
	}
	s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Trace("started new game on hub")
}

func (s *State) hubGameOver(hubID uuid.UUID, gameID uint64, report protocol.GameOverReport) {
	// a game-over for a game still pending is an anomaly; drop the report
	if err := s.Hubs.RemovePendingGame(hubID, gameID); err == nil {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Warn("game over report for pending game")
		return
	}
	// refuse reports for games not registered to this hub
	if err := s.Hubs.RemoveGame(hubID, gameID); err != nil {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Error("game over report for game not registered to hub")
		return
	}
	deadGame, err := s.Ongoing.RemoveOngoingGame(gameID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Error("could not remove ongoing game for game over report")
		return
	}
	s.sendGameOverAndSetIdle(gameID, report, deadGame.StartInfos)
}

func (s *State) hubAbortGame(hubID uuid.UUID, gameID uint64) {
	s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Trace("received abort from hub")

	if s.tryAbortHubPendingGame(hubID, gameID) {
		return
	}
	if s.tryAbortHubOngoingGame(hubID, gameID) {
		return
	}
	s.log.WithFields(logrus.Fields{"hub_id": hubID, "game_id": gameID}).Error("unable to abort the hub's game")
}
