package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecam/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "facecam",
	Short: "Collect faces from a camera, train a recognizer and stream recognition results",
	Long: `facecam captures labeled face samples from a camera, trains an LBPH face
recognizer on them and serves a live annotated MJPEG stream together with a
JSON API for collection, training, recognition of still images and settings.

Configuration is read from environment variables, optionally from a .env file
in the working directory.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	setupLogging(config.Load().Log)
}

// setupLogging installs the default slog logger. Logs go to stderr so
// command output on stdout stays machine readable.
func setupLogging(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
