package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/arnold/stakeit-api/internal/config"
	"github.com/arnold/stakeit-api/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	Debug   bool `help:"Enable debug logging."`

	Serve     ServeCmd     `cmd:"" help:"Run the HTTP API." default:"1"`
	Migrate   MigrateCmd   `cmd:"" help:"Apply database migrations and exit."`
	Reconcile ReconcileCmd `cmd:"" help:"Rewrite a goal's cached counters from its check-in history."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("stakeit"),
		kong.Description("Stake-backed daily goal check-ins"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	cfg := config.Load()
	if CLI.Debug {
		cfg.Debug = true
	}
	if err := logger.Init(logger.Config{Debug: cfg.Debug, LogDir: cfg.LogDir}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logger: %v\n", err)
		os.Exit(1)
	}

	if err := ctx.Run(&appContext{cfg: cfg}); err != nil {
		logger.Error("command failed", "command", ctx.Command(), "err", err)
		os.Exit(1)
	}
}
