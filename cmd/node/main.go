package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tagstore-dht/internal/config"
	"tagstore-dht/internal/logger"
	zapfactory "tagstore-dht/internal/logger/zap"
	"tagstore-dht/internal/node"
	"tagstore-dht/internal/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	lgr = lgr.Named("node")
	cfg.LogConfig(lgr)

	n, err := node.New(cfg, lgr)
	if err != nil {
		lgr.Error("fatal: failed to build node", logger.F("err", err.Error()))
		os.Exit(1)
	}

	shutdown := telemetry.InitTracer(cfg.Telemetry, "tagstore-dht-node", n.Self().ID)
	defer func() { _ = shutdown(context.Background()) }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := n.Run(ctx); err != nil {
		lgr.Error("fatal: node exited with error", logger.F("err", err.Error()))
		os.Exit(1)
	}
}
