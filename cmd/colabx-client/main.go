package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"colabx-sync/config"
	"colabx-sync/internal/session"
	"colabx-sync/internal/snapshot"
)

func main() {
	cfg := config.Default().FromEnv()

	flag.StringVar(&cfg.RelayURL, "relay", cfg.RelayURL, "Relay websocket URL")
	flag.StringVar(&cfg.RoomID, "room", cfg.RoomID, "Room to join")
	flag.StringVar(&cfg.UserName, "name", cfg.UserName, "Display name")
	flag.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "Local cache file (empty to disable)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	var snaps *snapshot.Store
	if cfg.SnapshotPath != "" {
		var err error
		snaps, err = snapshot.Open(cfg.SnapshotPath)
		if err != nil {
			logger.Error("failed to open snapshot cache", "err", err)
			os.Exit(1)
		}
		defer snaps.Close()
	}

	sess, err := session.New(session.Options{
		RelayURL:       cfg.RelayURL,
		RoomID:         cfg.RoomID,
		User:           session.NewUser(cfg.UserName),
		Snapshots:      snaps,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to create session", "err", err)
		os.Exit(1)
	}

	logger.Info("joining room", "room", cfg.RoomID, "relay", cfg.RelayURL,
		"user", sess.User().Name)
	sess.Connect()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			state, lastErr := sess.Status()
			logger.Info("session status",
				"state", state.String(),
				"files", len(sess.Files()),
				"active", sess.ActiveFile(),
				"participants", len(sess.Participants()),
				"lastError", lastErr)

		case <-sigChan:
			logger.Info("shutting down")
			sess.Close()
			return
		}
	}
}
