package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"xmastree/internal/config"
	"xmastree/internal/logx"
	"xmastree/internal/server"
)

func main() {
	var configPath string
	var verbose, very, quiet bool
	flag.StringVar(&configPath, "config", "xmastree.yml", "configuration file (YAML, or TOML when it ends in .toml)")
	flag.BoolVar(&verbose, "v", false, "log at info level")
	flag.BoolVar(&very, "vv", false, "log at debug level")
	flag.BoolVar(&quiet, "q", false, "log errors only")
	flag.Parse()

	logger := logx.New(os.Stderr, logx.LevelFromFlags(very, verbose, quiet, slog.LevelInfo))

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := config.WriteDefault(configPath); err != nil {
				fatal(logger, "write default config", err)
			}
			logger.Info("no configuration found, default configuration written", "path", configPath)
			cfg, err = config.Load(configPath)
		}
		if err != nil {
			fatal(logger, "load config", err)
		}
	}

	level, err := logx.ParseLevel(cfg.LogLevel)
	if err != nil {
		fatal(logger, "log level", err)
	}
	logger = logx.New(os.Stderr, logx.LevelFromFlags(very, verbose, quiet, level))
	slog.SetDefault(logger)

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	s, err := server.New(cfg, logger)
	if err != nil {
		fatal(logger, "initialise server", err)
	}

	if err := s.Run(ctx); err != nil {
		fatal(logger, "server exited", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
