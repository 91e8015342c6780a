// cmd/hostserver/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/arena/internal/auth"
	"github.com/jason-s-yu/arena/internal/host"
	"github.com/jason-s-yu/arena/internal/lobby"
	"github.com/jason-s-yu/arena/internal/middleware"
)

type config struct {
	bind           string
	port           int
	ticksPerSec    int
	purgeTicks     uint64
	maxRequestSize uint16
	maxMembers     int
	minPlayers     int
	ackTimeout     time.Duration
	startBuffer    time.Duration
	gameExpiry     time.Duration
	hubGrace       time.Duration
	keyPrivate     string
	keyPublic      string
	verbose        bool
}

func (c *config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if (c.keyPrivate == "") != (c.keyPublic == "") {
		return fmt.Errorf("both --key-private and --key-public must be provided together")
	}
	return nil
}

func newCmd(cfg *config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ARENA_HOST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "hostserver",
		Short:         "Authoritative matchmaker: lobbies, hub assignment, and ongoing-game tracking.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: ARENA_HOST_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: ARENA_HOST_PORT)")
	fs.IntVar(&cfg.ticksPerSec, "ticks-per-sec", 15, "reconciliation ticks per second (env: ARENA_HOST_TICKS_PER_SEC)")
	fs.Uint64Var(&cfg.purgeTicks, "ongoing-purge-ticks", 15, "ticks between ongoing-game expiry sweeps (env: ARENA_HOST_ONGOING_PURGE_TICKS)")
	fs.Uint16Var(&cfg.maxRequestSize, "max-request-size", 32, "lobby search page clamp (env: ARENA_HOST_MAX_REQUEST_SIZE)")
	fs.IntVar(&cfg.maxMembers, "max-members", 8, "max members per lobby (env: ARENA_HOST_MAX_MEMBERS)")
	fs.IntVar(&cfg.minPlayers, "min-players", 1, "min players required to launch (env: ARENA_HOST_MIN_PLAYERS)")
	fs.DurationVar(&cfg.ackTimeout, "ack-timeout", 10*time.Second, "pending lobby ack window (env: ARENA_HOST_ACK_TIMEOUT)")
	fs.DurationVar(&cfg.startBuffer, "start-buffer", 3*time.Second, "post-ack game start grace (env: ARENA_HOST_START_BUFFER)")
	fs.DurationVar(&cfg.gameExpiry, "game-expiry", 60*time.Minute, "ongoing game expiry (env: ARENA_HOST_GAME_EXPIRY)")
	fs.DurationVar(&cfg.hubGrace, "hub-grace", 10*time.Second, "hub disconnect grace period (env: ARENA_HOST_HUB_GRACE)")
	fs.StringVar(&cfg.keyPrivate, "key-private", "", "path to ed25519 private key (env: ARENA_HOST_KEY_PRIVATE)")
	fs.StringVar(&cfg.keyPublic, "key-public", "", "path to ed25519 public key (env: ARENA_HOST_KEY_PUBLIC)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "enable debug logging (env: ARENA_HOST_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	return cmd
}

func run(ctx context.Context, cfg *config) error {
	logger := logrus.New()
	if cfg.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if cfg.keyPrivate != "" {
		if err := auth.InitFromPath(cfg.keyPrivate, cfg.keyPublic); err != nil {
			return err
		}
	} else {
		auth.Init()
	}

	gateway := host.NewGateway(logger)
	state := host.NewState(host.StateConfig{
		Lobbies: lobby.CacheConfig{
			MaxRequestSize: cfg.maxRequestSize,
			Checker: lobby.BasicChecker{
				MaxMembers:         cfg.maxMembers,
				MinPlayersToLaunch: cfg.minPlayers,
			},
		},
		Pending:  lobby.PendingConfig{AckTimeout: cfg.ackTimeout, StartBuffer: cfg.startBuffer},
		Ongoing:  host.OngoingGamesCacheConfig{ExpiryDuration: cfg.gameExpiry},
		DCBuffer: host.DisconnectBufferConfig{ExpiryDuration: cfg.hubGrace},
	}, gateway, logger, nil)

	srv := host.NewServer(host.ServerConfig{
		TicksPerSec:                 cfg.ticksPerSec,
		OngoingGamePurgePeriodTicks: cfg.purgeTicks,
	}, state, logger)
	gateway.Bind(srv)

	mux := http.NewServeMux()
	mux.Handle("/ws/user", gateway.UserHandler())
	mux.Handle("/ws/hub", gateway.HubHandler())

	addr := fmt.Sprintf("%s:%d", cfg.bind, cfg.port)
	httpSrv := &http.Server{Addr: addr, Handler: middleware.LogMiddleware(logger)(mux)}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := srv.Run(ctx)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	return group.Wait()
}

func main() {
	cfg := &config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
