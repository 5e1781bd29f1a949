package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/warphost/internal/config"
	"github.com/BioHazard786/warphost/internal/credentials"
	"github.com/BioHazard786/warphost/internal/directory"
	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/BioHazard786/warphost/internal/host"
	"github.com/BioHazard786/warphost/internal/signaling"
	"github.com/BioHazard786/warphost/internal/ui"
	"github.com/BioHazard786/warphost/internal/webrtc"
	"github.com/BioHazard786/warphost/internal/worker"
	"github.com/spf13/cobra"
)

var hostOpts config.Options

var flagDashboard bool

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"h"},
	Short:   "Start the simulation and host it as a public room",
	Long: `Start the simulation worker, register with the signaling server and
publish the room in the directory. Runs until interrupted.

Examples:
  warphost host --worker "node server.js"
  warphost host --worker ./sim --gamemode 4tdm.json --room "Test Name"
  warphost host --worker ./sim --relay --dashboard`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(hostOpts)
		if err != nil {
			return failure.New("load config", err)
		}
		return runHost(cmd.Context(), cfg)
	},
}

func init() {
	f := hostCmd.Flags()
	f.StringVar(&hostOpts.SignalingHost, "signaling-host", "", "PeerJS signaling server host")
	f.IntVar(&hostOpts.SignalingPort, "signaling-port", 0, "PeerJS signaling server port")
	f.StringVar(&hostOpts.SignalingPath, "signaling-path", "", "PeerJS signaling server path")
	f.StringVar(&hostOpts.SignalingKey, "signaling-key", "", "PeerJS API key")
	f.BoolVar(&hostOpts.Insecure, "insecure", false, "use ws:// instead of wss:// for signaling")
	f.StringVar(&hostOpts.PeerID, "id", "", "peer id to register (random if empty)")
	f.StringVar(&hostOpts.DirectoryURL, "directory", "", "directory WebSocket URL")
	f.StringVar(&hostOpts.CredentialsURL, "credentials", "", "relay credentials endpoint")
	f.StringVar(&hostOpts.RelayHost, "turn-host", "", "relay (TURN) server host")
	f.IntVar(&hostOpts.RelayPort, "turn-port", 0, "relay (TURN) server port")
	f.StringVar(&hostOpts.Gamemode, "gamemode", "", "gamemode file for the simulation")
	f.StringVar(&hostOpts.RoomCode, "room", "", "room name shown in the directory")
	f.StringVarP(&hostOpts.WorkerCommand, "worker", "w", "", "command that runs the simulation")
	f.BoolVar(&hostOpts.ForceRelay, "relay", false, "force connections through the relay server")
	f.BoolVarP(&flagDashboard, "dashboard", "d", false, "show a live room dashboard")
	rootCmd.AddCommand(hostCmd)
}

func runHost(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	proc, err := worker.Start(ctx, cfg.WorkerCommand, logger)
	if err != nil {
		return failure.New("start worker", err)
	}
	defer proc.Close()

	client := signaling.NewClient(signaling.Options{
		Host:       cfg.Signaling.Host,
		Port:       cfg.Signaling.Port,
		Path:       cfg.Signaling.Path,
		Key:        cfg.Signaling.Key,
		Secure:     cfg.Signaling.Secure,
		ID:         cfg.PeerID,
		ForceRelay: cfg.ForceRelay,
		Engine:     webrtc.NewPionEngine(),
		Logger:     logger,
	})
	defer client.Close()

	fetcher := credentials.NewFetcher(cfg.CredentialsURL, logger)
	fetcher.Relay.Hostname = cfg.RelayHost
	fetcher.Relay.Port = cfg.RelayPort

	h := host.New(host.Options{
		Signaler:    client,
		Worker:      proc,
		Credentials: fetcher,
		Dial:        host.DirectoryDialer(cfg.DirectoryURL, directory.DialOptions{Logger: logger}),
		Logger:      logger,
		Config: host.Config{
			RoomCode:   cfg.RoomCode,
			ForceRelay: cfg.ForceRelay,
		},
	})
	defer h.Close()

	sp := ui.NewConnectionSpinner("Connecting to signaling server...")
	sp.Start()
	peerID, err := client.Open(ctx)
	if err != nil {
		sp.Error("Could not reach the signaling server")
		return failure.New("open signaling", err)
	}
	sp.Success(fmt.Sprintf("Registered as %s", peerID))

	runErr := make(chan error, 1)
	go func() { runErr <- h.Run(ctx) }()

	sp = ui.NewWaitingSpinner("Starting simulation...")
	sp.Start()
	if err := h.StartServer(ctx, cfg.Gamemode, cfg.RoomCode); err != nil {
		sp.Error("Simulation did not start")
		return failure.New("start server", err)
	}
	sp.Success("Simulation running")

	sp = ui.NewConnectionSpinner("Publishing room...")
	sp.Start()
	if err := h.ConnectDirectory(ctx); err != nil {
		sp.Error("Could not reach the directory")
		return err
	}
	roomID, err := h.RoomID(ctx)
	if err != nil {
		sp.Error("No room id assigned")
		return failure.New("room id", err)
	}
	sp.Stop()

	ui.RenderRoomInfo(ui.RoomInfo{RoomID: roomID, PeerID: peerID, Gamemode: cfg.Gamemode})
	ui.RenderICEServers(append(webrtc.DefaultSTUNServers(), fetcher.Relay))

	var view func(context.Context) error
	if flagDashboard {
		view = func(ctx context.Context) error { return ui.RunDashboard(ctx, h.Snapshot) }
	} else {
		ui.PrintInfo("Hosting. Press Ctrl+C to stop.")
	}
	if err := serve(ctx, proc.Exited(), runErr, view); err != nil {
		return err
	}

	select {
	case <-proc.Exited():
		if err := proc.Err(); err != nil {
			return failure.New("worker exited", err)
		}
	default:
	}
	ui.PrintSuccess("Room closed")
	return nil
}

// serve blocks until ctx ends, the worker exits, Run returns or view returns.
// A running view is stopped and waited for before serve returns.
func serve(ctx context.Context, exited <-chan struct{}, runErr <-chan error, view func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	viewErr := make(chan error, 1)
	if view != nil {
		go func() { viewErr <- view(ctx) }()
	}

	var err error
	viewDone := view == nil
	select {
	case <-ctx.Done():
	case <-exited:
	case err = <-viewErr:
		viewDone = true
	case rerr := <-runErr:
		if rerr != nil && !errors.Is(rerr, context.Canceled) {
			err = failure.New("run host", rerr)
		}
	}
	cancel()
	if !viewDone {
		<-viewErr
	}
	return err
}
