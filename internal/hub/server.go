// internal/hub/server.go
package hub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/instance"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// ServerConfig configures a game hub server.
type ServerConfig struct {
	// TicksPerSec is the fixed tick rate of Run; zero or negative means 15.
	// Tests skip Run and call Tick directly.
	TicksPerSec int
	// InitialMaxCapacity is the number of concurrent games the hub claims it
	// can run.
	InitialMaxCapacity uint16
	// RunningGamePurgePeriodTicks is the sub-tick period of the
	// running-games sweep.
	RunningGamePurgePeriodTicks uint64
	// LaunchPackTimeout bounds each launch-pack fetch.
	LaunchPackTimeout time.Duration
	// PendingGames configures the pending-games cache.
	PendingGames PendingGamesCacheConfig
	// RunningGames configures the running-games cache.
	RunningGames RunningGamesCacheConfig
}

// HostLink delivers hub-to-host messages. The websocket client implements
// it in production; tests install a capture.
type HostLink interface {
	ToHost(msg protocol.HubToHost)
}

type hubEvent interface{ hubEvent() }

type evHostMsg struct {
	msg protocol.HostToHub
}

type evHostConnected struct{}

type evPackReady struct {
	gameID  uint64
	request protocol.GameStartRequest
	pack    protocol.LaunchPack
}

type evPackFailed struct {
	gameID uint64
}

type evInstanceReport struct {
	gameID uint64
	report protocol.GameInstanceReport
}

type evInstanceDead struct {
	gameID uint64
}

func (evHostMsg) hubEvent()        {}
func (evHostConnected) hubEvent()  {}
func (evPackReady) hubEvent()      {}
func (evPackFailed) hubEvent()     {}
func (evInstanceReport) hubEvent() {}
func (evInstanceDead) hubEvent()   {}

// Server is a game-instance worker: it reserves capacity, fetches launch
// packs, spawns instances, and forwards their reports to the host. All
// state mutation happens on the tick goroutine; launch tasks communicate
// back through the event queue.
type Server struct {
	config   ServerConfig
	log      *logrus.Logger
	source   LaunchPackSource
	launcher instance.Launcher
	out      HostLink

	pending *PendingGamesCache
	running *RunningGamesCache

	events    chan hubEvent
	tickCount uint64

	maxCapacity  uint16
	lastReported int32 // -1 until the first report

	// launchCtx parents every launch-pack fetch and spawned instance
	launchCtx context.Context
}

// NewServer builds a hub server.
func NewServer(
	config ServerConfig,
	source LaunchPackSource,
	launcher instance.Launcher,
	out HostLink,
	log *logrus.Logger,
	now func() time.Time,
) *Server {
	if config.RunningGamePurgePeriodTicks == 0 {
		config.RunningGamePurgePeriodTicks = 1
	}
	if config.LaunchPackTimeout == 0 {
		config.LaunchPackTimeout = 2 * time.Second
	}
	return &Server{
		config:       config,
		log:          log,
		source:       source,
		launcher:     launcher,
		out:          out,
		pending:      NewPendingGamesCache(config.PendingGames, log, now),
		running:      NewRunningGamesCache(config.RunningGames, log, now),
		events:       make(chan hubEvent, 1024),
		maxCapacity:  config.InitialMaxCapacity,
		lastReported: -1,
		launchCtx:    context.Background(),
	}
}

// Pending exposes the pending-games cache for tests.
func (s *Server) Pending() *PendingGamesCache { return s.pending }

// Running exposes the running-games cache for tests.
func (s *Server) Running() *RunningGamesCache { return s.running }

// HostConnected enqueues a host (re)connection event; the hub re-reports
// its capacity in response. Safe for concurrent use.
func (s *Server) HostConnected() {
	s.events <- evHostConnected{}
}

// HostMsg enqueues an inbound host message.
func (s *Server) HostMsg(msg protocol.HostToHub) {
	s.events <- evHostMsg{msg: msg}
}

// estimatedCapacity is the claimed headroom minus reserved and running
// games.
func (s *Server) estimatedCapacity() int32 {
	return int32(s.maxCapacity) - int32(s.pending.NumPending()) - int32(s.running.NumRunning())
}

// reportCapacity pushes a Capacity message when the estimate changed since
// the last report.
func (s *Server) reportCapacity() {
	estimated := s.estimatedCapacity()
	if estimated < 0 {
		estimated = 0
	}
	if estimated == s.lastReported {
		return
	}
	s.lastReported = estimated
	s.out.ToHost(&protocol.Capacity{N: uint16(estimated)})
}

// Tick runs one reconciliation pass: drain queued events in receive order,
// then run the expiry sweeps.
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

func (s *Server) dispatch(ev hubEvent) {
	switch e := ev.(type) {
	case evHostConnected:
		s.lastReported = -1
		s.reportCapacity()
	case evHostMsg:
		switch m := e.msg.(type) {
		case *protocol.StartGame:
			s.handleStartGame(m.Request)
		case *protocol.AbortGame:
			s.handleAbortGame(m.ID)
		default:
			s.log.WithField("type", e.msg.MsgType()).Warn("unhandled host message")
		}
	case evPackReady:
		s.handlePackReady(e.gameID, e.request, e.pack)
	case evPackFailed:
		s.handlePackFailed(e.gameID)
	case evInstanceReport:
		s.handleInstanceReport(e.gameID, e.report)
	case evInstanceDead:
		s.handleInstanceDead(e.gameID)
	}
}

// handleStartGame reserves capacity and kicks off the launch-pack fetch.
// With no headroom the request is declined immediately.
func (s *Server) handleStartGame(request protocol.GameStartRequest) {
	gameID := request.GameID()

	if s.estimatedCapacity() <= 0 {
		s.log.WithField("game_id", gameID).Info("declining game, no capacity")
		s.out.ToHost(&protocol.HubAbort{ID: gameID})
		return
	}
	if s.pending.HasGame(gameID) || s.running.HasGame(gameID) {
		s.log.WithField("game_id", gameID).Warn("declining game, id already in use")
		s.out.ToHost(&protocol.HubAbort{ID: gameID})
		return
	}

	if err := s.pending.AddPendingGame(request); err != nil {
		s.log.WithField("game_id", gameID).Error("failed reserving pending game")
		s.out.ToHost(&protocol.HubAbort{ID: gameID})
		return
	}
	s.reportCapacity()

	go func() {
		ctx, cancel := context.WithTimeout(s.launchCtx, s.config.LaunchPackTimeout)
		defer cancel()
		pack, err := s.source.GetLaunchPack(ctx, request)
		if err != nil {
			s.log.WithField("game_id", gameID).WithError(err).Warn("launch pack fetch failed")
			s.events <- evPackFailed{gameID: gameID}
			return
		}
		s.events <- evPackReady{gameID: gameID, request: request, pack: pack}
	}()
}

func (s *Server) handlePackReady(gameID uint64, request protocol.GameStartRequest, pack protocol.LaunchPack) {
	// the game may have been aborted or expired while the pack was in flight
	if !s.pending.HasGame(gameID) {
		s.log.WithField("game_id", gameID).Trace("dropping launch pack for non-pending game")
		return
	}

	inst, err := s.launcher.Launch(s.launchCtx, pack)
	if err != nil {
		s.log.WithField("game_id", gameID).WithError(err).Error("failed launching game instance")
		if _, rmErr := s.pending.RemovePendingGame(gameID); rmErr == nil {
			s.out.ToHost(&protocol.HubAbort{ID: gameID})
			s.reportCapacity()
		}
		return
	}

	if _, err := s.pending.RemovePendingGame(gameID); err != nil {
		s.log.WithField("game_id", gameID).Error("pending entry vanished during launch")
	}
	if err := s.running.AddInstance(request, inst); err != nil {
		s.log.WithField("game_id", gameID).Error("failed registering running game")
		_ = inst.SendCommand(&protocol.CommandAbort{})
		s.out.ToHost(&protocol.HubAbort{ID: gameID})
		s.reportCapacity()
		return
	}

	// forward the instance's reports into the event queue; closure of the
	// stream means the instance terminated
	go func() {
		for report := range inst.Reports() {
			s.events <- evInstanceReport{gameID: gameID, report: report}
		}
		s.events <- evInstanceDead{gameID: gameID}
	}()
}

func (s *Server) handlePackFailed(gameID uint64) {
	if _, err := s.pending.RemovePendingGame(gameID); err != nil {
		return
	}
	s.out.ToHost(&protocol.HubAbort{ID: gameID})
	s.reportCapacity()
}

func (s *Server) handleInstanceReport(gameID uint64, report protocol.GameInstanceReport) {
	switch r := report.(type) {
	case *protocol.ReportGameStart:
		request, ok := s.running.Request(gameID)
		if !ok {
			s.log.WithField("game_id", gameID).Trace("dropping start report for unknown game")
			return
		}
		s.out.ToHost(&protocol.HubGameStart{ID: gameID, Request: request, Report: r.Report})

	case *protocol.ReportGameOver:
		if _, _, ok := s.running.ExtractInstance(gameID); !ok {
			s.log.WithField("game_id", gameID).Trace("dropping game over report for unknown game")
			return
		}
		s.out.ToHost(&protocol.HubGameOver{ID: gameID, Report: r.Report})
		s.reportCapacity()

	case *protocol.ReportAborted:
		if _, _, ok := s.running.ExtractInstance(gameID); !ok {
			return
		}
		s.out.ToHost(&protocol.HubAbort{ID: gameID})
		s.reportCapacity()
	}
}

// handleInstanceDead converts termination-without-game-over into an abort.
func (s *Server) handleInstanceDead(gameID uint64) {
	if _, _, ok := s.running.ExtractInstance(gameID); !ok {
		return
	}
	s.log.WithField("game_id", gameID).Warn("game instance died without game over")
	s.out.ToHost(&protocol.HubAbort{ID: gameID})
	s.reportCapacity()
}

// handleAbortGame stops a pending or running game on the host's orders and
// confirms with HubAbort so the host can clean its registry.
func (s *Server) handleAbortGame(gameID uint64) {
	if _, err := s.pending.RemovePendingGame(gameID); err == nil {
		s.out.ToHost(&protocol.HubAbort{ID: gameID})
		s.reportCapacity()
		return
	}
	if inst, _, ok := s.running.ExtractInstance(gameID); ok {
		if err := inst.SendCommand(&protocol.CommandAbort{}); err != nil {
			s.log.WithField("game_id", gameID).WithError(err).Debug("abort command to instance failed")
		}
		s.out.ToHost(&protocol.HubAbort{ID: gameID})
		s.reportCapacity()
		return
	}
	s.log.WithField("game_id", gameID).Warn("abort for unknown game")
}

// runSweeps purges stale pending fetches and dead or overdue instances.
func (s *Server) runSweeps() {
	for _, request := range s.pending.DrainExpired() {
		gameID := request.GameID()
		s.log.WithField("game_id", gameID).Warn("pending game expired")
		s.out.ToHost(&protocol.HubAbort{ID: gameID})
	}

	if s.tickCount%s.config.RunningGamePurgePeriodTicks == 0 {
		for _, inst := range s.running.DrainInvalid() {
			gameID := inst.ID()
			s.log.WithField("game_id", gameID).Warn("running game invalid, aborting")
			_ = inst.SendCommand(&protocol.CommandAbort{})
			s.out.ToHost(&protocol.HubAbort{ID: gameID})
		}
	}
	s.reportCapacity()
}

// Run drives Tick at the configured rate until the context is cancelled.
// The context also parents every launch task.
func (s *Server) Run(ctx context.Context) error {
	s.launchCtx = ctx

	ticksPerSec := s.config.TicksPerSec
	if ticksPerSec <= 0 {
		ticksPerSec = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(ticksPerSec))
	defer ticker.Stop()

	s.log.WithField("ticks_per_sec", ticksPerSec).Info("hub server running")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("hub server stopping")
			for _, inst := range s.running.DrainAll() {
				_ = inst.SendCommand(&protocol.CommandAbort{})
			}
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}
