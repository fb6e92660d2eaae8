package scroll

import (
	"image"
	"time"

	"github.com/soocke/pixel-scroll-go/domain/stitch"
)

// State enumerates the lifecycle of a capture session.
type State int

const (
	StateIdle State = iota
	StateInitialized
	StateCapturing
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StateCapturing:
		return "capturing"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// active reports whether a session in this state blocks a new Init.
func (s State) active() bool { return s == StateInitialized || s == StateCapturing }

// OverlapResult is the outcome of stitching one frame.
type OverlapResult = stitch.Result

// FileWriter persists an image. An empty format selects it from the path
// extension.
type FileWriter interface {
	WriteImageFile(path string, img *image.RGBA, format string) error
}

// ClipboardWriter places an image on the system clipboard.
type ClipboardWriter interface {
	WriteImage(img *image.RGBA) error
}

// ImageEncoder turns the composite into transferable bytes for preview
// polling. maxWidth > 0 requests a downscaled copy.
type ImageEncoder func(img *image.RGBA, maxWidth int) ([]byte, error)

// StateListener is called after each successful state transition.
type StateListener func(prev, next State)

// Stats summarises session behaviour for instrumentation.
type Stats struct {
	SessionID        string
	State            State
	Captures         uint64
	FailedCaptures   uint64
	Appended         uint64
	Duplicates       uint64
	AvgCapture       time.Duration
	AvgCaptureMicros float64
	LastCapture      time.Time
	Sequence         uint64
	Width, Height    int
	BufferBytes      int
}
