package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-facegate/internal/log"
	"github.com/teslashibe/go-facegate/pkg/status"
	"github.com/teslashibe/go-facegate/pkg/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kiosk web server",
	Long: `Serve the kiosk API and websockets. The browser page starts the camera,
shows the live preview streamed over /ws/camera and follows status and
navigation events from /ws/status.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Address to listen on")
	serveCmd.Flags().StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "Directory with the kiosk page")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.Component("serve")

	wcfg := web.DefaultConfig()
	wcfg.Addr = cfg.Addr
	wcfg.StaticDir = cfg.StaticDir
	server := web.NewServer(wcfg, log.L())

	sink := status.Multi{server, status.NewLogSink(log.Component("status"))}
	ctrl, release, err := newController(ctx, sink, server, server.SendFrame, server.FaceEvent)
	if err != nil {
		return err
	}
	server.Bind(ctrl)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server stopped", "error", err)
	}

	// Same teardown as a page unload: camera off, redirects cancelled.
	release()
	if serr := server.Shutdown(); serr != nil {
		logger.Warn("shutdown", "error", serr)
	}
	return err
}
