package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"kvnode/internal/app"
	"kvnode/pkg/banner"
	"kvnode/pkg/config"
	"kvnode/pkg/logger"
	"kvnode/pkg/shutdown"
)

// Build metadata, set via ldflags at release time.
var version = "dev"

func main() {
	_ = godotenv.Load(".env") // missing .env is not an error

	logger.Init()
	log := logger.Log

	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		shutdown.Fatal(log, "failed to parse flags", err)
	}
	fileCfg, fileExists, err := config.ParseFile(flags.ConfigPath)
	if err != nil {
		shutdown.Fatal(log, "failed to load config file", err)
	}
	envCfg := config.ParseEnv()
	eff := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg)

	banner.Print(eff, version)

	a, err := app.New(eff, log)
	if err != nil {
		shutdown.Fatal(log, "failed to initialize node", err)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background(), log)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Fatal(log, "node exited with error", err)
	}
}
