// Package config holds client configuration shared by the CLI host.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config describes one client session.
type Config struct {
	// RelayURL is the websocket endpoint of the room relay.
	RelayURL string

	// RoomID names the collaboration session to join.
	RoomID string

	// UserName is the display name; a generated one is used when empty.
	UserName string

	// SnapshotPath is the local cache file; empty disables caching.
	SnapshotPath string

	// ReconnectDelay between an abnormal close and the next attempt.
	ReconnectDelay time.Duration
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		RelayURL:       "ws://localhost:8080/ws",
		ReconnectDelay: 3 * time.Second,
	}
}

// FromEnv overlays COLABX_* environment variables onto c and returns it.
func (c *Config) FromEnv() *Config {
	if v := os.Getenv("COLABX_RELAY_URL"); v != "" {
		c.RelayURL = v
	}
	if v := os.Getenv("COLABX_ROOM"); v != "" {
		c.RoomID = v
	}
	if v := os.Getenv("COLABX_USER"); v != "" {
		c.UserName = v
	}
	if v := os.Getenv("COLABX_SNAPSHOT"); v != "" {
		c.SnapshotPath = v
	}
	return c
}

// Validate checks the fields a session cannot run without.
func (c *Config) Validate() error {
	if c.RelayURL == "" {
		return fmt.Errorf("config: relay URL is required")
	}
	if c.RoomID == "" {
		return fmt.Errorf("config: room id is required")
	}
	return nil
}
