// cmd/gameinstance/main.go

// gameinstance is the child-process game session binary: the hub spawns one
// per game, hands it the launch pack as an argument, and speaks JSON-lines
// over stdin/stdout (commands down, reports up).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jason-s-yu/arena/internal/connect"
	"github.com/jason-s-yu/arena/internal/instance"
	"github.com/jason-s-yu/arena/internal/protocol"
)

type config struct {
	launchPack string
	verbose    bool
}

func newCmd(cfg *config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ARENA_GAME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "gameinstance",
		Short:         "One game session as a child process (JSON-lines over stdin/stdout).",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.launchPack, "launch-pack", "", "launch pack JSON (env: ARENA_GAME_LAUNCH_PACK)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "enable debug logging to stderr (env: ARENA_GAME_VERBOSE)")

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
	// stdout belongs to the report protocol; all logging goes to stderr
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if cfg.launchPack == "" {
		return fmt.Errorf("--launch-pack is required")
	}
	var pack protocol.LaunchPack
	if err := json.Unmarshal([]byte(cfg.launchPack), &pack); err != nil {
		return fmt.Errorf("invalid launch pack: %w", err)
	}

	factory := instance.DemoFactory{ServerConfig: connect.DummySetupConfig()}
	return instance.RunChild(ctx, factory, pack, logger)
}

func main() {
	cfg := &config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
