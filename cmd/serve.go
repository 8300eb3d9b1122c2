package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/engine"
	"github.com/kozaktomas/facecam/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the camera stream and the web API",
	Long: `Open the camera, process every frame (detect, collect or recognize, annotate)
and serve the annotated frames as MJPEG on /video_feed together with the JSON
API under /api/v1.

On startup the persisted model is loaded and retrained when the dataset holds
subjects the model does not know.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 5000, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("no-camera", false, "Serve the API without opening a camera")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	port, host := resolveServeHostPort(cmd)
	noCamera := mustGetBool(cmd, "no-camera")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, cleanup, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	rt.Init(ctx)

	hub := engine.NewHub()
	streamDone := make(chan struct{})
	if noCamera {
		close(streamDone)
	} else {
		go func() {
			defer close(streamDone)
			if err := engine.NewStreamer(rt, hub, engine.OpenCamera).Run(ctx); err != nil {
				slog.Error("camera stream stopped", "error", err)
			}
		}()
	}

	server := web.NewServer(cfg, rt, hub, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("shutting down", "signal", sig.String())
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
		cancel()
	}()

	fmt.Printf("Starting facecam on http://%s:%d\n", host, port)
	fmt.Printf("Video feed: http://%s:%d/video_feed\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		slog.Warn("systemd notification failed", "error", err)
	} else if sent {
		slog.Debug("notified systemd")
	}

	if err := server.Start(); err != nil {
		cancel()
		<-streamDone
		return fmt.Errorf("starting server: %w", err)
	}
	<-streamDone
	return nil
}
