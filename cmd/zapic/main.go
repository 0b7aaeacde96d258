package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/infrastructure/config"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/logging"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/server"
	"github.com/GriffinCanCode/zapic/internal/player"
	"github.com/GriffinCanCode/zapic/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "zapic: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "TOML config file")
	url := flag.String("url", "", "Web app URL")
	pageName := flag.String("page", "default", "Page to open once the app starts")
	authCode := flag.String("auth-code", "", "Auth code returned for sign-in requests")
	debug := flag.Bool("debug", false, "Enable the debug server")
	debugAddr := flag.String("debug-addr", "", "Debug server address")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *url != "" {
		if cfg.Connectivity.ProbeURL == cfg.Page.URL {
			cfg.Connectivity.ProbeURL = *url
		}
		cfg.Page.URL = *url
	}
	if *debug {
		cfg.Debug.Enabled = true
	}
	if *debugAddr != "" {
		cfg.Debug.Addr = *debugAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *dev {
		cfg.Logging.Development = true
		if *logLevel == "" {
			cfg.Logging.Level = "" // development default
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting zapic host",
		zap.String("url", cfg.Page.URL),
		zap.String("cache_dir", cfg.Cache.Dir),
		zap.Bool("debug_server", cfg.Debug.Enabled),
	)

	metrics := monitoring.NewMetrics()
	s, err := session.New(cfg,
		session.WithLogger(logger.Logger),
		session.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	surface := newConsoleSurface(logger.Component("surface"), *authCode)
	detach := s.Attach(surface)
	defer detach()
	removeAuth := s.SetAuthHandler(player.HandlerFuncs{
		Login: func(p player.Player) {
			logger.Info("Player signed in", zap.String("player_id", p.ID))
		},
		Logout: func(p player.Player) {
			logger.Info("Player signed out", zap.String("player_id", p.ID))
		},
	})
	defer removeAuth()

	if err := s.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer s.Stop()
	s.Show(*pageName)

	var debugServer *server.Server
	if cfg.Debug.Enabled {
		debugServer = server.New(cfg.Debug, s, logger.Component("debug"), cfg.Logging.Development,
			server.WithLogLevel(logger.LevelHandler()))
		if err := debugServer.Start(); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	if debugServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := debugServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during debug server shutdown", zap.Error(err))
		}
	}
	return nil
}
