package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soocke/pixel-scroll-go/domain/capture"
	"github.com/soocke/pixel-scroll-go/domain/scroll"
)

const maxConsecutiveCaptureFailures = 3

// StopReason explains why a capture loop ended.
type StopReason string

const (
	StopMaxFrames    StopReason = "max_frames"
	StopEndOfContent StopReason = "end_of_content"
	StopInterrupted  StopReason = "interrupted"
)

// LoopOptions configures RunCaptureLoop.
type LoopOptions struct {
	Interval            time.Duration
	MaxFrames           int
	StopAfterDuplicates int
	// OnFrame, when set, is called after every stitched frame.
	OnFrame func(capture.Frame, scroll.OverlapResult)
}

// LoopResult summarises a finished capture loop.
type LoopResult struct {
	Frames     int
	Duplicates int
	Reason     StopReason
	Width      int
	Height     int
}

// RunCaptureLoop captures and stitches frames from an initialized session
// while the user scrolls. It stops after MaxFrames, after
// StopAfterDuplicates consecutive duplicate frames, or when ctx is done. A
// few consecutive capture failures are tolerated before giving up.
func RunCaptureLoop(ctx context.Context, svc *scroll.Service, opts LoopOptions, logger *slog.Logger) (LoopResult, error) {
	if opts.Interval <= 0 {
		opts.Interval = 300 * time.Millisecond
	}
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var res LoopResult
	consecutiveDup, failures := 0, 0
	finish := func(reason StopReason) (LoopResult, error) {
		res.Reason = reason
		res.Width, res.Height = svc.Size()
		return res, nil
	}
	for opts.MaxFrames <= 0 || res.Frames < opts.MaxFrames {
		if ctx.Err() != nil {
			return finish(StopInterrupted)
		}
		frame, overlap, err := svc.CaptureAndHandle()
		switch {
		case err == nil:
			failures = 0
			res.Frames++
			if opts.OnFrame != nil {
				opts.OnFrame(frame, overlap)
			}
			if overlap.Duplicate {
				res.Duplicates++
				consecutiveDup++
				if opts.StopAfterDuplicates > 0 && consecutiveDup >= opts.StopAfterDuplicates {
					return finish(StopEndOfContent)
				}
			} else {
				consecutiveDup = 0
			}
		case scroll.Retryable(err):
			failures++
			if logger != nil {
				logger.Warn("capture loop retry", "attempt", failures, "error", err)
			}
			if failures >= maxConsecutiveCaptureFailures {
				return res, err
			}
		case errors.Is(err, scroll.ErrSessionReplaced):
			return finish(StopInterrupted)
		default:
			return res, err
		}
		select {
		case <-ctx.Done():
			return finish(StopInterrupted)
		case <-ticker.C:
		}
	}
	return finish(StopMaxFrames)
}
