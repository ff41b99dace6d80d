package main

import (
	"context"
	"flag"
	"os"
	"path"
	_ "time/tzdata"

	"github.com/google/subcommands"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/config"
	"github.com/Rajchodisetti/marketgate/internal/gateway"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

var (
	configPath = flag.String("config", "", "Path to the YAML configuration file (MARKETGATE_* environment variables override it)")
	logLevel   = flag.String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	version    = "dev"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&serveCmd{}, "server")
	commander.Register(&quoteCmd{}, "data")
	commander.Register(&historyCmd{}, "data")
	commander.Register(&searchCmd{}, "data")
	commander.Register(&indicatorsCmd{}, "data")

	flag.Parse()
	observ.SetVersion(version)
	os.Exit(int(commander.Execute(context.Background())))
}

// openGateway loads configuration and wires a started gateway. Logs go to
// stderr so command output stays clean; one-shot commands default to warn.
func openGateway(ctx context.Context, oneShot bool) (*gateway.Gateway, config.Root, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, cfg, err
	}

	level := cfg.LogLevel
	if oneShot && level == "info" {
		level = "warn"
	}
	if *logLevel != "" {
		level = *logLevel
	}
	observ.SetOutput(os.Stderr)
	if err := observ.SetLevel(level); err != nil {
		return nil, cfg, err
	}

	provider, err := adapters.NewProvider(cfg.Upstream)
	if err != nil {
		return nil, cfg, err
	}
	gw := gateway.New(provider, cfg)
	gw.Start(ctx)
	return gw, cfg, nil
}
