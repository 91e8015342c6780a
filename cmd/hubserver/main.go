// cmd/hubserver/main.go
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/hub"
	"github.com/jason-s-yu/arena/internal/instance"
)

type config struct {
	hostURL      string
	authToken    string
	hubID        string
	capacity     uint16
	ticksPerSec  int
	purgeTicks   uint64
	packTimeout  time.Duration
	packExpiry   time.Duration
	gameExpiry   time.Duration
	gameBinary   string
	gameDuration string
	verbose      bool
}

func (c *config) validate() error {
	if c.hostURL == "" {
		return fmt.Errorf("--host-url is required")
	}
	if c.authToken == "" {
		return fmt.Errorf("--auth-token is required (a hub JWT minted with the host's signing key)")
	}
	if c.hubID != "" {
		if _, err := uuid.Parse(c.hubID); err != nil {
			return fmt.Errorf("invalid --hub-id: %w", err)
		}
	}
	return nil
}

func newCmd(cfg *config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ARENA_HUB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "hubserver",
		Short:         "Game-instance worker: reserves capacity, launches games, reports to the host.",
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

	fs.StringVar(&cfg.hostURL, "host-url", "ws://localhost:8080/ws/hub", "host server hub endpoint (env: ARENA_HUB_HOST_URL)")
	fs.StringVar(&cfg.authToken, "auth-token", "", "hub JWT for the host (env: ARENA_HUB_AUTH_TOKEN)")
	fs.StringVar(&cfg.hubID, "hub-id", "", "stable hub id; informational, identity comes from the token (env: ARENA_HUB_HUB_ID)")
	fs.Uint16Var(&cfg.capacity, "capacity", 4, "max concurrent games (env: ARENA_HUB_CAPACITY)")
	fs.IntVar(&cfg.ticksPerSec, "ticks-per-sec", 15, "reconciliation ticks per second (env: ARENA_HUB_TICKS_PER_SEC)")
	fs.Uint64Var(&cfg.purgeTicks, "running-purge-ticks", 15, "ticks between running-game sweeps (env: ARENA_HUB_RUNNING_PURGE_TICKS)")
	fs.DurationVar(&cfg.packTimeout, "pack-timeout", 2*time.Second, "launch pack fetch deadline (env: ARENA_HUB_PACK_TIMEOUT)")
	fs.DurationVar(&cfg.packExpiry, "pack-expiry", 10*time.Second, "pending game expiry (env: ARENA_HUB_PACK_EXPIRY)")
	fs.DurationVar(&cfg.gameExpiry, "game-expiry", 60*time.Minute, "running game expiry (env: ARENA_HUB_GAME_EXPIRY)")
	fs.StringVar(&cfg.gameBinary, "game-binary", "", "game instance binary; empty runs games in-process (env: ARENA_HUB_GAME_BINARY)")
	fs.StringVar(&cfg.gameDuration, "game-duration", "", "demo game duration override (env: ARENA_HUB_GAME_DURATION)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "enable debug logging (env: ARENA_HUB_VERBOSE)")

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

	var launcher instance.Launcher
	if cfg.gameBinary != "" {
		launcher = instance.NewProcessLauncher(cfg.gameBinary, nil, logger)
	} else {
		launcher = instance.NewLocalLauncher(instance.DemoFactory{
			ServerConfig: connect.DummySetupConfig(),
		}, logger)
	}

	client := hub.NewHostClient(cfg.hostURL, cfg.authToken, logger)
	srv := hub.NewServer(hub.ServerConfig{
		TicksPerSec:                 cfg.ticksPerSec,
		InitialMaxCapacity:          cfg.capacity,
		RunningGamePurgePeriodTicks: cfg.purgeTicks,
		LaunchPackTimeout:           cfg.packTimeout,
		PendingGames:                hub.PendingGamesCacheConfig{ExpiryDuration: cfg.packExpiry},
		RunningGames:                hub.RunningGamesCacheConfig{ExpiryDuration: cfg.gameExpiry},
	}, hub.DemoLaunchPackSource{GameDuration: cfg.gameDuration}, launcher, client, logger, nil)
	client.Bind(srv)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := client.Run(ctx); err == context.Canceled {
			return nil
		} else if err != nil {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := srv.Run(ctx); err == context.Canceled {
			return nil
		} else if err != nil {
			return err
		}
		return nil
	})
	return group.Wait()
}

func main() {
	cfg := &config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
