// Package window resolves screen regions for on-screen windows so a scroll
// session can be bound to the window being scrolled.
package window

import (
	"errors"
	"image"
)

// ErrUnsupported is returned on platforms without a window locator.
var ErrUnsupported = errors.New("window: active window lookup not supported on this platform")

// Locator finds the physical-pixel rectangle of a window.
type Locator interface {
	ActiveWindowRect() (image.Rectangle, error)
}

// Inset shrinks r by the given margins, for cropping fixed headers and
// scrollbars out of a window region. It returns an empty rectangle when the
// margins consume r.
func Inset(r image.Rectangle, top, right, bottom, left int) image.Rectangle {
	out := image.Rect(r.Min.X+left, r.Min.Y+top, r.Max.X-right, r.Max.Y-bottom)
	if out.Dx() <= 0 || out.Dy() <= 0 {
		return image.Rectangle{}
	}
	return out
}
