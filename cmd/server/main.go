package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"

	"vector-void/internal/api"
	"vector-void/internal/archive"
	"vector-void/internal/config"
	"vector-void/internal/game"
	"vector-void/internal/relay"
)

func main() {
	appConfig, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	setupLogging(appConfig.Log)

	log.WithFields(log.Fields{
		"port":          appConfig.Server.Port,
		"authoritative": appConfig.Relay.Authoritative,
		"turnTimeout":   appConfig.Relay.TurnTimeout,
	}).Info("vector void relay starting")

	// Event log
	events := game.NewEventLog(game.EventLogOptions{
		MaxEventsPerSec:   appConfig.EventLog.MaxEventsPerSec,
		MaxEventsPerMatch: appConfig.EventLog.MaxEventsPerMatch,
	})
	if err := events.Start(appConfig.EventLog.Path); err != nil {
		log.WithError(err).Warn("event log file disabled, keeping events in memory")
		_ = events.Start("")
	} else if appConfig.EventLog.Path != "" {
		log.WithField("path", appConfig.EventLog.Path).Info("event log enabled")
	}

	// Match archive
	var store *archive.Store
	if path := appConfig.Archive.Path; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.WithError(err).Fatal("create archive directory")
		}
		store, err = archive.Open(path)
		if err != nil {
			log.WithError(err).Fatal("open match archive")
		}
		log.WithField("path", path).Info("match archive enabled")
	}

	relayOpts := relay.Options{
		Authoritative:    appConfig.Relay.Authoritative,
		TurnTimeout:      appConfig.Relay.TurnTimeout,
		RoomSeed:         appConfig.Relay.RoomSeed,
		ActionsPerSecond: appConfig.Relay.ActionsPerSecond,
		ActionBurst:      appConfig.Relay.ActionBurst,
		Events:           events,
	}
	serverCfg := api.ServerConfig{
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: appConfig.Server.RequestsPerSecond,
			Burst:             appConfig.Server.RequestBurst,
			CleanupInterval:   api.DefaultRateLimitConfig.CleanupInterval,
		},
		Hub: api.HubConfig{
			MaxConnections:      appConfig.Server.MaxConnections,
			MaxConnectionsPerIP: appConfig.Server.MaxConnectionsPerIP,
		},
		CORSOrigins: appConfig.Server.CORSOrigins,
	}
	// Assign only non-nil stores so the interfaces stay nil when disabled.
	if store != nil {
		relayOpts.Archive = store
		serverCfg.Archive = store
	}
	manager := relay.NewManager(relayOpts)
	serverCfg.Manager = manager

	debugCfg := api.ObservabilityConfig{
		Enabled:       appConfig.Debug.Enabled,
		ListenAddr:    appConfig.Debug.ListenAddr,
		AllowExternal: appConfig.Debug.AllowExternal,
		BasicAuthUser: appConfig.Debug.BasicAuthUser,
		BasicAuthPass: appConfig.Debug.BasicAuthPass,
		Events:        events,
	}
	debugServer, err := api.StartDebugServer(debugCfg)
	if err != nil {
		log.WithError(err).Warn("debug server disabled")
	}

	server := api.NewServer(serverCfg)
	go func() {
		if err := server.Start(appConfig.Server.Addr()); err != nil {
			log.WithError(err).Fatal("api server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Info("server ready, press Ctrl+C to stop")
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("api server shutdown")
	}
	manager.Close()
	if err := debugServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("debug server shutdown")
	}
	events.Stop()
	if err := store.Close(); err != nil {
		log.WithError(err).Warn("close archive")
	}
	log.Info("goodbye")
}

func setupLogging(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stdout)
}
