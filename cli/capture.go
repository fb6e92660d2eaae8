package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scroll-go/app"
	"github.com/soocke/pixel-scroll-go/domain/capture"
	"github.com/soocke/pixel-scroll-go/domain/scroll"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a region while it scrolls and save the stitched image",
	Long: `Capture a screen region repeatedly while you scroll its content, stitching
each frame onto a growing composite. Capturing stops after --max-frames,
when the view stops moving for --stop-after-duplicates captures, or on
Ctrl+C. The composite is then written to --output and optionally copied to
the clipboard.

The region is taken from --region, else the focused window with
--active-window, else the selection_* keys of the config file.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

var (
	captureRegion       string
	captureActiveWindow bool
	captureInsets       [4]int
	captureOutput       string
	captureClipboard    bool
	captureDelay        time.Duration
)

func init() {
	f := captureCmd.Flags()
	f.StringVarP(&captureRegion, "region", "r", "", "capture region as x,y,w,h")
	f.BoolVarP(&captureActiveWindow, "active-window", "w", false, "capture the focused window")
	f.IntVar(&captureInsets[0], "inset-top", 0, "rows to trim from the top of the region")
	f.IntVar(&captureInsets[1], "inset-right", 0, "columns to trim from the right, e.g. a scrollbar")
	f.IntVar(&captureInsets[2], "inset-bottom", 0, "rows to trim from the bottom of the region")
	f.IntVar(&captureInsets[3], "inset-left", 0, "columns to trim from the left of the region")
	f.StringVarP(&captureOutput, "output", "o", "", "output file (default: timestamped file in output_dir)")
	f.BoolVar(&captureClipboard, "clipboard", false, "also copy the result to the clipboard")
	f.DurationVar(&captureDelay, "delay", 0, "wait before the first capture")
	f.Int("max-frames", 0, "stop after this many captures")
	f.Int("capture-interval-ms", 0, "milliseconds between captures")
	f.Int("stop-after-duplicates", 0, "stop once this many consecutive frames show no movement; 0 disables")
	f.String("format", "", "output format when --output has no extension")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	c, err := setup(cmd)
	if err != nil {
		return err
	}
	rect, err := parseRegion(captureRegion)
	if err != nil {
		return err
	}
	region, err := c.ResolveRegion(app.RegionRequest{
		Rect:         rect,
		ActiveWindow: captureActiveWindow,
		InsetTop:     captureInsets[0],
		InsetRight:   captureInsets[1],
		InsetBottom:  captureInsets[2],
		InsetLeft:    captureInsets[3],
	})
	if err != nil {
		return err
	}
	if _, err := c.Scroll.Init(region); err != nil {
		return err
	}
	defer c.Scroll.Clear()

	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Capturing %v, scroll the content now (Ctrl+C to stop)\n", region)
	if captureDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(captureDelay):
		}
	}

	res, loopErr := app.RunCaptureLoop(ctx, c.Scroll, app.LoopOptions{
		Interval:            time.Duration(c.Config.CaptureIntervalMS) * time.Millisecond,
		MaxFrames:           c.Config.MaxFrames,
		StopAfterDuplicates: c.Config.StopAfterDuplicates,
		OnFrame: func(f capture.Frame, r scroll.OverlapResult) {
			w, h := c.Scroll.Size()
			fmt.Fprintf(stderr, "frame %d: +%d rows (confidence %.3f), composite %dx%d\n",
				f.Sequence, r.NewRows(f.Height()), r.Confidence, w, h)
		},
	}, c.Logger)
	if loopErr != nil {
		if res.Frames == 0 {
			return loopErr
		}
		c.Logger.Warn("capture loop ended early, saving partial result", "error", loopErr, "frames", res.Frames)
	}
	if err := c.Scroll.Finish(); err != nil {
		return err
	}
	return writeResult(cmd, c, captureOutput, captureClipboard, loopErr)
}

// writeResult saves the finalized composite and reports where it went.
func writeResult(cmd *cobra.Command, c *app.AppContainer, path string, clipboard bool, prior error) error {
	if path == "" {
		path = c.DefaultOutputPath(time.Now())
	}
	format, _ := cmd.Flags().GetString("format")
	if err := c.Scroll.SaveToFile(path, format); err != nil {
		return errors.Join(prior, err)
	}
	w, h := c.Scroll.Size()
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%dx%d)\n", path, w, h)
	if clipboard {
		if err := c.Scroll.SaveToClipboard(); err != nil {
			return errors.Join(prior, err)
		}
	}
	return prior
}
