package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/soocke/needle-align/app"
	"github.com/soocke/needle-align/config"
	"github.com/soocke/needle-align/debug"
)

func main() {
	cfgPath := flag.String("config", "needle-align.json", "path to the JSON configuration")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		NewLogger(slog.LevelInfo).Error("load config", "path", *cfgPath, "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := NewLogger(level)
	if cfg.Debug {
		debug.StartRuntimeLogger(context.Background(), 2*time.Second, logger)
	}

	c, err := app.BuildContainer(cfg, logger, *cfgPath)
	if err != nil {
		logger.Error("build application", "error", err)
		os.Exit(1)
	}
	application := app.NewApp("Needle Align", 900, 720, c)
	application.Start()
}
