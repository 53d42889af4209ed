package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tagstore-dht/internal/loadtest"
	"tagstore-dht/internal/loadtest/writer"
	"tagstore-dht/internal/logger"
	zapfactory "tagstore-dht/internal/logger/zap"
)

var defaultConfigPath = "config/loadtest/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := loadtest.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	if err := cfg.Validate(); err != nil {
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
	lgr = lgr.Named("loadtest")
	cfg.LogConfig(lgr)

	var w writer.Writer
	if cfg.CSV.Enabled {
		w, err = writer.NewCSVWriter(cfg.CSV.Path)
		if err != nil {
			lgr.Error("failed to initialize CSV writer", logger.F("err", err.Error()))
			return
		}
	} else {
		w = writer.NopWriter{}
	}
	defer w.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := loadtest.New(cfg, lgr.Named("runner"), w)
	start := time.Now()
	if err := runner.Run(ctx); err != nil {
		lgr.Error("loadtest run failed", logger.F("err", err.Error()))
		os.Exit(1)
	}
	lgr.Info("loadtest finished", logger.F("elapsed", time.Since(start).String()))
}
