// Package cli provides the pixel-scroll command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scroll-go/app"
	"github.com/soocke/pixel-scroll-go/config"
	"github.com/soocke/pixel-scroll-go/debug"
)

// LoggerFactory builds the process logger writing to w.
type LoggerFactory func(w io.Writer, level slog.Leveler) *slog.Logger

var newLogger LoggerFactory = func(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// containerDeps lets tests substitute platform collaborators.
var containerDeps app.Deps

// configFS holds the config file.
var configFS afero.Fs = afero.NewOsFs()

var rootCmd = &cobra.Command{
	Use:   "pixel-scroll",
	Short: "Scrolling screenshot capture and stitching",
	Long: `pixel-scroll captures a screen region repeatedly while its content scrolls
and stitches the frames into one tall image by detecting how far the content
moved between captures.`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
)

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute(factory LoggerFactory) error {
	if factory != nil {
		newLogger = factory
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/pixel-scroll/config.json)")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.Bool("debug", false, "log runtime and buffer statistics periodically")
	pf.Float64("threshold", 0, "minimum similarity for an overlap match (0-1]")
	pf.Int("max-search-rows", 0, "cap on overlap rows examined; 0 searches the whole frame")
	pf.Int("min-overlap-rows", 0, "smallest overlap accepted as a match")
	pf.Int("stride", 0, "pixel sampling stride for the overlap search")
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q", s)
	}
	return lvl, nil
}

// setup loads configuration and builds the container for cmd. When debug is
// enabled the runtime logger runs until the command's context ends.
func setup(cmd *cobra.Command) (*app.AppContainer, error) {
	lvl, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFS(configFS, configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Debug && lvl > slog.LevelDebug {
		lvl = slog.LevelDebug
	}
	logger := newLogger(cmd.ErrOrStderr(), lvl)
	c := app.BuildContainer(cfg, logger, containerDeps)
	if cfg.Debug {
		debug.StartRuntimeLogger(cmd.Context(), 2*time.Second, logger, func() int {
			return c.Scroll.Stats().BufferBytes
		})
	}
	return c, nil
}
