// internal/host/server.go
package host

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// ServerConfig configures the host server's reconciliation loop.
type ServerConfig struct {
	// TicksPerSec is the fixed tick rate of Run; zero or negative means 15.
	// Tests skip Run and call Tick directly.
	TicksPerSec int
	// OngoingGamePurgePeriodTicks is the sub-tick period of the
	// ongoing-games expiry sweep.
	OngoingGamePurgePeriodTicks uint64
}

type hostEvent interface{ hostEvent() }

type evUserConnected struct {
	userID uuid.UUID
	env    connect.ClientEnv
}

type evUserDisconnected struct {
	userID uuid.UUID
}

type evUserMsg struct {
	userID uuid.UUID
	reqID  uint64
	msg    protocol.UserToHost
}

type evHubConnected struct {
	hubID uuid.UUID
}

type evHubDisconnected struct {
	hubID uuid.UUID
}

type evHubMsg struct {
	hubID uuid.UUID
	msg   protocol.HubToHost
}

func (evUserConnected) hostEvent()    {}
func (evUserDisconnected) hostEvent() {}
func (evUserMsg) hostEvent()          {}
func (evHubConnected) hostEvent()     {}
func (evHubDisconnected) hostEvent()  {}
func (evHubMsg) hostEvent()           {}

// Server is the authoritative matchmaker: a single-threaded reconciliation
// loop over the host State. Connection readers enqueue events; Tick drains
// them in receive order, runs expiry sweeps, and the Outbox flushes
// outbound messages.
type Server struct {
	config ServerConfig
	log    *logrus.Logger
	state  *State

	events    chan hostEvent
	tickCount uint64
}

// NewServer builds a host server around the given state.
func NewServer(config ServerConfig, state *State, log *logrus.Logger) *Server {
	if config.OngoingGamePurgePeriodTicks == 0 {
		config.OngoingGamePurgePeriodTicks = 1
	}
	return &Server{
		config: config,
		log:    log,
		state:  state,
		events: make(chan hostEvent, 1024),
	}
}

// State exposes the host state for tests and diagnostics. Touch it only
// from the tick goroutine.
func (s *Server) State() *State { return s.state }

// UserConnected enqueues a user connection event. Safe for concurrent use.
func (s *Server) UserConnected(userID uuid.UUID, env connect.ClientEnv) {
	s.events <- evUserConnected{userID: userID, env: env}
}

// UserDisconnected enqueues a user disconnection event.
func (s *Server) UserDisconnected(userID uuid.UUID) {
	s.events <- evUserDisconnected{userID: userID}
}

// UserMsg enqueues an inbound user message.
func (s *Server) UserMsg(userID uuid.UUID, reqID uint64, msg protocol.UserToHost) {
	s.events <- evUserMsg{userID: userID, reqID: reqID, msg: msg}
}

// HubConnected enqueues a hub connection event.
func (s *Server) HubConnected(hubID uuid.UUID) {
	s.events <- evHubConnected{hubID: hubID}
}

// HubDisconnected enqueues a hub disconnection event.
func (s *Server) HubDisconnected(hubID uuid.UUID) {
	s.events <- evHubDisconnected{hubID: hubID}
}

// HubMsg enqueues an inbound hub message.
func (s *Server) HubMsg(hubID uuid.UUID, msg protocol.HubToHost) {
	s.events <- evHubMsg{hubID: hubID, msg: msg}
}

// Tick runs one reconciliation pass: drain all queued events in receive
// order, then run the expiry sweeps.
func (s *Server) Tick() {
	s.tickCount++

	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
		default:
			s.runSweeps()
			return
		}
	}
}

func (s *Server) dispatch(ev hostEvent) {
	switch e := ev.(type) {
	case evUserConnected:
		s.state.HandleUserConnected(e.userID, e.env)
	case evUserDisconnected:
		s.state.HandleUserDisconnected(e.userID)
	case evUserMsg:
		s.state.HandleUserMsg(e.userID, e.reqID, e.msg)
	case evHubConnected:
		s.state.HandleHubConnected(e.hubID)
	case evHubDisconnected:
		s.state.HandleHubDisconnected(e.hubID)
	case evHubMsg:
		s.state.HandleHubMsg(e.hubID, e.msg)
	}
}

// runSweeps applies the per-cache expiry policies. Each expiry produces the
// same compensating event the corresponding explicit failure would.
func (s *Server) runSweeps() {
	// pending lobbies that timed out are reinstated with ack-fails
	for _, l := range s.state.Pending.DrainExpired() {
		s.log.WithField("lobby_id", l.ID()).Trace("pending lobby expired")
		s.state.handleAckFailure(l)
	}

	// expired hub disconnects: drop the hub and abort its games
	for _, hubID := range s.state.DCBuffer.DrainExpired() {
		s.state.unregisterHub(hubID)
	}

	// ongoing games that outlived the expiry are presumed lost
	if s.tickCount%s.config.OngoingGamePurgePeriodTicks == 0 {
		for _, game := range s.state.Ongoing.DrainExpired() {
			s.log.WithFields(logrus.Fields{"game_id": game.GameID, "hub_id": game.HubID}).Warn("ongoing game expired")
			if s.state.Hubs.HasGame(game.HubID, game.GameID) {
				if err := s.state.Hubs.RemoveGame(game.HubID, game.GameID); err == nil {
					s.state.out.ToHub(game.HubID, &protocol.AbortGame{ID: game.GameID})
				}
			}
			s.state.sendGameAbortsAndSetIdle(game.GameID, game.StartInfos)
		}
	}
}

// Run drives Tick at the configured rate until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ticksPerSec := s.config.TicksPerSec
	if ticksPerSec <= 0 {
		ticksPerSec = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(ticksPerSec))
	defer ticker.Stop()

	s.log.WithField("ticks_per_sec", ticksPerSec).Info("host server running")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("host server stopping")
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}
