package scroll

import (
	"errors"

	"github.com/soocke/pixel-scroll-go/domain/composite"
)

// Error taxonomy. Every failure is reported to the caller wrapped around one
// of these sentinels; match with errors.Is.
var (
	// ErrAlreadyActive: Init while a session is Initialized or Capturing.
	ErrAlreadyActive = errors.New("scroll: session already active")
	// ErrSizeMismatch: frame geometry inconsistent with the session.
	ErrSizeMismatch = composite.ErrSizeMismatch
	// ErrCaptureFailed: the screen capture provider failed. Retryable.
	ErrCaptureFailed = errors.New("scroll: capture failed")
	// ErrEncodeFailed: the file or clipboard writer failed.
	ErrEncodeFailed = errors.New("scroll: encode failed")
	// ErrNotInitialized: operation invoked before Init.
	ErrNotInitialized = errors.New("scroll: session not initialized")
	// ErrInvalidState: operation not valid in the current state.
	ErrInvalidState = errors.New("scroll: invalid state")
	// ErrInvalidRegion: Init with a region that has no area.
	ErrInvalidRegion = errors.New("scroll: invalid region")
	// ErrSessionReplaced: Clear or Init ran while a capture or stitch was in
	// flight; its result was discarded.
	ErrSessionReplaced = errors.New("scroll: session replaced")
)

// Retryable reports whether err may be retried without resetting the
// session.
func Retryable(err error) bool { return errors.Is(err, ErrCaptureFailed) }
