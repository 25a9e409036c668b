package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dymasius12/factory-motor-monitoring/internal/config"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/processor"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	watch := flag.Bool("watch", true, "reload thresholds and log level when the config file changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("info")
		logger.Logger.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []processor.Option
	if *watch && *configPath != "" {
		opts = append(opts, processor.WithConfigPath(*configPath))
	}

	p := processor.New(cfg, opts...)
	if err := p.Run(ctx); err != nil {
		log.Error().Err(err).Msg("processor exited")
		stop()
		os.Exit(1)
	}

	log.Info().Msg("exited")
}
