//go:build !windows

package capture

import (
	"fmt"
	"image"
	"time"

	"github.com/vova616/screenshot"
)

type screenProvider struct{}

// NewScreenProvider returns the platform screen capture provider.
func NewScreenProvider() Provider { return screenProvider{} }

// CaptureRegion grabs region (clipped to the screen) through the screenshot
// library. The returned frame is always anchored at the origin.
func (screenProvider) CaptureRegion(region image.Rectangle) (Frame, error) {
	if region.Empty() {
		return Frame{}, ErrEmptyRegion
	}
	screen, err := screenshot.ScreenRect()
	if err != nil {
		return Frame{}, fmt.Errorf("capture: screen rect: %w", err)
	}
	r := region.Intersect(screen)
	if r.Empty() {
		return Frame{}, fmt.Errorf("capture: region out of bounds region=%v screen=%v", region, screen)
	}
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Image: normalize(img), CapturedAt: time.Now(), Region: r}, nil
}

// normalize rebases img to the origin with a tight stride and opaque alpha.
func normalize(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if b.Min == (image.Point{}) && img.Stride == w*4 {
		forceOpaque(img.Pix)
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):][:w*4]
		copy(out.Pix[y*out.Stride:], src)
	}
	forceOpaque(out.Pix)
	return out
}

func forceOpaque(pix []byte) {
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xFF
	}
}
