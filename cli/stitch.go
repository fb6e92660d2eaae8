package cli

import (
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scroll-go/domain/capture"
	"github.com/soocke/pixel-scroll-go/domain/output"
)

var stitchCmd = &cobra.Command{
	Use:   "stitch <image>...",
	Short: "Stitch existing screenshots of a scrolled view into one image",
	Long: `Stitch screenshots taken while scrolling, in the order given. All images
must have the same width. Frames that repeat the previous one are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStitch,
}

var (
	stitchOutput    string
	stitchClipboard bool
)

func init() {
	f := stitchCmd.Flags()
	f.StringVarP(&stitchOutput, "output", "o", "", "output file (default: timestamped file in output_dir)")
	f.BoolVar(&stitchClipboard, "clipboard", false, "also copy the result to the clipboard")
	f.String("format", "", "output format when --output has no extension")
	rootCmd.AddCommand(stitchCmd)
}

func runStitch(cmd *cobra.Command, args []string) error {
	c, err := setup(cmd)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	for i, path := range args {
		img, err := output.OpenImage(c.FS, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if i == 0 {
			if _, err := c.Scroll.Init(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy())); err != nil {
				return err
			}
			defer c.Scroll.Clear()
		}
		frame := capture.NewFrame(img)
		res, err := c.Scroll.HandleImage(frame)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		switch {
		case res.Duplicate:
			fmt.Fprintf(stderr, "%s: duplicate, skipped\n", path)
		case i > 0 && res.Offset == 0:
			fmt.Fprintf(stderr, "%s: no overlap found (best %.3f), appended whole\n", path, res.Confidence)
		default:
			fmt.Fprintf(stderr, "%s: overlap %d rows, +%d\n", path, res.Offset, res.NewRows(frame.Height()))
		}
	}
	if err := c.Scroll.Finish(); err != nil {
		return err
	}
	return writeResult(cmd, c, stitchOutput, stitchClipboard, nil)
}
