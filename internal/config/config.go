package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BioHazard786/warphost/internal/credentials"
	"github.com/BioHazard786/warphost/internal/directory"
	"github.com/BioHazard786/warphost/internal/signaling"
)

// Defaults not owned by another package.
const (
	DefaultGamemode = "4tdm.json"
	DefaultRoomCode = "Test Name"
)

// Config holds the resolved host configuration.
type Config struct {
	Signaling SignalingConfig

	// PeerID is the id registered with the relay. Empty means generate one.
	PeerID string

	DirectoryURL   string
	CredentialsURL string
	RelayHost      string
	RelayPort      int

	// Gamemode is the mode file the simulation loads; RoomCode is the
	// human-readable name shown in the directory.
	Gamemode string
	RoomCode string

	WorkerCommand []string
	ForceRelay    bool
}

type SignalingConfig struct {
	Host   string
	Port   int
	Path   string
	Key    string
	Secure bool
}

// Options carries CLI flag values. Zero values fall through to the
// environment and then to defaults.
type Options struct {
	SignalingHost  string
	SignalingPort  int
	SignalingPath  string
	SignalingKey   string
	Insecure       bool
	PeerID         string
	DirectoryURL   string
	CredentialsURL string
	RelayHost      string
	RelayPort      int
	Gamemode       string
	RoomCode       string
	WorkerCommand  string
	ForceRelay     bool
}

// Load resolves configuration with the following priority:
// 1. CLI flags (passed via Options)
// 2. Environment variables
// 3. Defaults
func Load(opts Options) (*Config, error) {
	var errs []error

	port, err := intValue(opts.SignalingPort, "SIGNALING_PORT", signaling.DefaultPort)
	errs = append(errs, err)
	relayPort, err := intValue(opts.RelayPort, "TURN_PORT", credentials.DefaultRelayPort)
	errs = append(errs, err)
	insecure, err := boolValue(opts.Insecure, "SIGNALING_INSECURE")
	errs = append(errs, err)
	forceRelay, err := boolValue(opts.ForceRelay, "FORCE_RELAY")
	errs = append(errs, err)

	cfg := &Config{
		Signaling: SignalingConfig{
			Host:   stringValue(opts.SignalingHost, "SIGNALING_HOST", signaling.DefaultHost),
			Port:   port,
			Path:   stringValue(opts.SignalingPath, "SIGNALING_PATH", signaling.DefaultPath),
			Key:    stringValue(opts.SignalingKey, "SIGNALING_KEY", signaling.DefaultKey),
			Secure: !insecure,
		},
		PeerID:         stringValue(opts.PeerID, "HOST_PEER_ID", ""),
		DirectoryURL:   stringValue(opts.DirectoryURL, "DIRECTORY_URL", directory.DefaultURL),
		CredentialsURL: stringValue(opts.CredentialsURL, "TURN_CREDENTIALS_URL", credentials.DefaultURL),
		RelayHost:      stringValue(opts.RelayHost, "TURN_HOST", credentials.DefaultRelayHost),
		RelayPort:      relayPort,
		Gamemode:       stringValue(opts.Gamemode, "GAMEMODE", DefaultGamemode),
		RoomCode:       stringValue(opts.RoomCode, "ROOM_CODE", DefaultRoomCode),
		WorkerCommand:  strings.Fields(stringValue(opts.WorkerCommand, "WORKER_COMMAND", "")),
		ForceRelay:     forceRelay,
	}

	errs = append(errs, cfg.validate())
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Signaling.Port < 1 || c.Signaling.Port > 65535 {
		errs = append(errs, fmt.Errorf("signaling port %d out of range", c.Signaling.Port))
	}
	if c.RelayPort < 1 || c.RelayPort > 65535 {
		errs = append(errs, fmt.Errorf("relay port %d out of range", c.RelayPort))
	}
	if !strings.HasPrefix(c.DirectoryURL, "ws://") && !strings.HasPrefix(c.DirectoryURL, "wss://") {
		errs = append(errs, fmt.Errorf("directory URL %q must use ws:// or wss://", c.DirectoryURL))
	}
	if len(c.WorkerCommand) == 0 {
		errs = append(errs, errors.New("worker command is required (--worker or WORKER_COMMAND)"))
	}
	return errors.Join(errs...)
}

func stringValue(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func intValue(flag int, env string, def int) (int, error) {
	if flag != 0 {
		return flag, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", env, err)
	}
	return n, nil
}

func boolValue(flag bool, env string) (bool, error) {
	if flag {
		return true, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", env, err)
	}
	return b, nil
}
