package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WORKER_COMMAND", "node server.js")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Signaling.Host != "0.peerjs.com" || cfg.Signaling.Port != 443 || cfg.Signaling.Path != "/peerjs" ||
		cfg.Signaling.Key != "peerjs" || !cfg.Signaling.Secure {
		t.Errorf("signaling = %+v", cfg.Signaling)
	}
	if cfg.DirectoryURL != "wss://woomy.online/host" {
		t.Errorf("directory URL = %q", cfg.DirectoryURL)
	}
	if cfg.RelayHost != "74.208.44.199" || cfg.RelayPort != 3478 {
		t.Errorf("relay = %s:%d", cfg.RelayHost, cfg.RelayPort)
	}
	if cfg.Gamemode != DefaultGamemode || cfg.RoomCode != DefaultRoomCode {
		t.Errorf("gamemode = %q, room = %q", cfg.Gamemode, cfg.RoomCode)
	}
	if strings.Join(cfg.WorkerCommand, " ") != "node server.js" {
		t.Errorf("worker = %q", cfg.WorkerCommand)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("WORKER_COMMAND", "node server.js")
	t.Setenv("SIGNALING_HOST", "env.example.org")
	t.Setenv("SIGNALING_PORT", "9000")
	t.Setenv("ROOM_CODE", "from-env")

	cfg, err := Load(Options{SignalingHost: "flag.example.org", Insecure: true})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Signaling.Host != "flag.example.org" {
		t.Errorf("host = %q, want flag value", cfg.Signaling.Host)
	}
	if cfg.Signaling.Port != 9000 {
		t.Errorf("port = %d, want env value", cfg.Signaling.Port)
	}
	if cfg.Signaling.Secure {
		t.Error("insecure flag ignored")
	}
	if cfg.RoomCode != "from-env" {
		t.Errorf("room = %q", cfg.RoomCode)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SIGNALING_PORT", "not-a-port")
	t.Setenv("FORCE_RELAY", "maybe")
	t.Setenv("DIRECTORY_URL", "https://woomy.online/host")
	t.Setenv("WORKER_COMMAND", "")

	_, err := Load(Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"SIGNALING_PORT", "FORCE_RELAY", "ws://", "worker command"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestForceRelayFromEnvironment(t *testing.T) {
	t.Setenv("WORKER_COMMAND", "./sim")
	t.Setenv("FORCE_RELAY", "true")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.ForceRelay {
		t.Error("FORCE_RELAY not applied")
	}
}
