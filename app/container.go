package app

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/soocke/pixel-scroll-go/config"
	"github.com/soocke/pixel-scroll-go/domain/capture"
	"github.com/soocke/pixel-scroll-go/domain/output"
	"github.com/soocke/pixel-scroll-go/domain/scroll"
	"github.com/soocke/pixel-scroll-go/domain/stitch"
	"github.com/soocke/pixel-scroll-go/domain/window"
)

// Deps overrides platform collaborators. Nil fields get the platform
// default.
type Deps struct {
	Capture   capture.Provider
	Clipboard scroll.ClipboardWriter
	Windows   window.Locator
	FS        afero.Fs
}

// AppContainer assembles the orchestrator and its collaborators.
type AppContainer struct {
	Config    *config.Config
	Logger    *slog.Logger
	Scroll    *scroll.Service
	Files     *output.FileWriter
	Clipboard scroll.ClipboardWriter
	Windows   window.Locator
	FS        afero.Fs
}

// BuildContainer constructs all components. No OS resource is touched until
// an operation needs it.
func BuildContainer(cfg *config.Config, logger *slog.Logger, deps Deps) *AppContainer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c := &AppContainer{Config: cfg, Logger: logger, FS: deps.FS}
	if c.FS == nil {
		c.FS = afero.NewOsFs()
	}
	provider := deps.Capture
	if provider == nil {
		provider = capture.NewScreenProvider()
	}
	c.Clipboard = deps.Clipboard
	if c.Clipboard == nil {
		c.Clipboard = output.NewSystemClipboard()
	}
	c.Windows = deps.Windows
	if c.Windows == nil {
		c.Windows = window.NewLocator()
	}
	c.Files = output.NewFileWriter(c.FS, cfg.JPEGQuality)
	c.Scroll = scroll.NewService(logger, scroll.Collaborators{
		Capture:   provider,
		Files:     c.Files,
		Clipboard: c.Clipboard,
		Encode:    output.PreviewPNG,
	}, ScrollOptions(cfg))
	return c
}

// ScrollOptions maps configuration onto orchestrator options.
func ScrollOptions(cfg *config.Config) scroll.Options {
	opts := scroll.DefaultOptions()
	opts.Stitch = stitch.Options{
		Threshold:      cfg.Threshold,
		MaxSearchRows:  cfg.MaxSearchRows,
		MinOverlapRows: cfg.MinOverlapRows,
		Stride:         cfg.Stride,
	}
	opts.InitialRows = cfg.InitialRows
	return opts
}

// DefaultOutputPath names a composite file in the configured output
// directory.
func (c *AppContainer) DefaultOutputPath(now time.Time) string {
	name := fmt.Sprintf("scroll-%s.%s", now.Format("20060102-150405"), c.Config.Format)
	return filepath.Join(c.Config.OutputDir, name)
}

// RegionRequest describes how the capture region is chosen. An explicit
// rectangle wins, then the active window, then the configured selection.
type RegionRequest struct {
	Rect         image.Rectangle
	ActiveWindow bool
	InsetTop     int
	InsetRight   int
	InsetBottom  int
	InsetLeft    int
}

// ResolveRegion turns req into a screen rectangle.
func (c *AppContainer) ResolveRegion(req RegionRequest) (image.Rectangle, error) {
	r := req.Rect
	if r.Empty() && req.ActiveWindow {
		wr, err := c.Windows.ActiveWindowRect()
		if err != nil {
			return image.Rectangle{}, err
		}
		r = wr
	}
	if r.Empty() {
		r = c.Config.Selection()
	}
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: no region given and no selection configured", scroll.ErrInvalidRegion)
	}
	r = window.Inset(r, req.InsetTop, req.InsetRight, req.InsetBottom, req.InsetLeft)
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: insets consume the region", scroll.ErrInvalidRegion)
	}
	return r, nil
}
