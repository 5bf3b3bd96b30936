package config

import "testing"

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("COLABX_RELAY_URL", "ws://relay.example:9000/ws")
	t.Setenv("COLABX_ROOM", "proj-42")

	cfg := Default().FromEnv()
	if cfg.RelayURL != "ws://relay.example:9000/ws" {
		t.Errorf("RelayURL = %q", cfg.RelayURL)
	}
	if cfg.RoomID != "proj-42" {
		t.Errorf("RoomID = %q", cfg.RoomID)
	}
	if cfg.ReconnectDelay <= 0 {
		t.Errorf("ReconnectDelay default missing: %v", cfg.ReconnectDelay)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a config with no room")
	}
	cfg.RoomID = "proj-42"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate rejected a complete config: %v", err)
	}
}
