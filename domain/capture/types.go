package capture

import (
	"errors"
	"image"
	"time"
)

// ErrEmptyRegion is returned when a capture is requested for a rectangle with
// no area.
var ErrEmptyRegion = errors.New("capture: empty region")

// Frame is one captured snapshot of the scrolling region. Image rows are
// row-major RGBA in physical pixels. A Frame must not be mutated once it has
// been handed to the orchestrator.
type Frame struct {
	Image      *image.RGBA
	CapturedAt time.Time
	Region     image.Rectangle
	Sequence   uint64
}

// Width returns the pixel width of the frame, or 0 for an empty frame.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the pixel height of the frame, or 0 for an empty frame.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool { return f.Width() == 0 || f.Height() == 0 }

// NewFrame wraps img as a frame captured now. The region defaults to the
// image bounds.
func NewFrame(img *image.RGBA) Frame {
	f := Frame{Image: img, CapturedAt: time.Now()}
	if img != nil {
		f.Region = img.Bounds()
	}
	return f
}

// Provider captures a rectangle of the screen. Implementations are platform
// specific; CaptureRegion may block on the OS call.
type Provider interface {
	CaptureRegion(region image.Rectangle) (Frame, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(region image.Rectangle) (Frame, error)

func (fn ProviderFunc) CaptureRegion(region image.Rectangle) (Frame, error) { return fn(region) }
