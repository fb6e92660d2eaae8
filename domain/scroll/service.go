package scroll

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/soocke/pixel-scroll-go/domain/capture"
	"github.com/soocke/pixel-scroll-go/domain/composite"
	"github.com/soocke/pixel-scroll-go/domain/stitch"
)

const defaultImageCacheSize = 8

// Options configures the orchestrator.
type Options struct {
	Stitch stitch.Options
	// InitialRows pre-sizes the composite buffer; 0 sizes it to the first
	// frame.
	InitialRows int
	// ImageCacheSize bounds the number of encoded composites kept for
	// ImageData polling.
	ImageCacheSize int
}

// DefaultOptions returns the standard orchestrator settings.
func DefaultOptions() Options {
	return Options{Stitch: stitch.DefaultOptions(), ImageCacheSize: defaultImageCacheSize}
}

// Collaborators externalizes OS interactions. Any of them may be nil, in
// which case the operations needing it fail.
type Collaborators struct {
	Capture   capture.Provider
	Files     FileWriter
	Clipboard ClipboardWriter
	Encode    ImageEncoder
}

type session struct {
	id       string
	region   image.Rectangle
	state    State
	store    *composite.Store
	last     *image.RGBA
	sequence uint64

	captures     uint64
	failed       uint64
	appended     uint64
	duplicates   uint64
	captureNanos uint64
	lastCapture  time.Time
}

type imageKey struct {
	generation uint64
	height     int
	maxWidth   int
}

// Service owns the single scroll capture session of the process. Every
// method is safe for concurrent use. The state lock is held only for state
// reads and transitions; Capture and HandleImage additionally hold a
// pipeline lock for their whole duration so frames are stitched in the order
// they were captured. The OS capture call and the overlap search run without
// the state lock, so Clear never waits on them; their results are dropped
// with ErrSessionReplaced when the session changed meanwhile.
type Service struct {
	mu       sync.Mutex
	pipeline sync.Mutex

	logger     *slog.Logger
	opts       Options
	collab     Collaborators
	sess       *session
	generation uint64
	listeners  []StateListener
	images     *lru.Cache[imageKey, []byte]
}

// NewService constructs an idle orchestrator.
func NewService(logger *slog.Logger, collab Collaborators, opts Options) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.ImageCacheSize <= 0 {
		opts.ImageCacheSize = defaultImageCacheSize
	}
	images, _ := lru.New[imageKey, []byte](opts.ImageCacheSize)
	return &Service{logger: logger, opts: opts, collab: collab, images: images}
}

// AddListener registers l for state transitions. Listeners run with the
// state lock held and must not call back into the Service.
func (s *Service) AddListener(l StateListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Init starts a new session bound to region. It fails with ErrAlreadyActive
// while another session is Initialized or Capturing; a Finalized session is
// replaced.
func (s *Service) Init(region image.Rectangle) (string, error) {
	if region.Empty() {
		return "", fmt.Errorf("%w: %v", ErrInvalidRegion, region)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil && s.sess.state.active() {
		return "", fmt.Errorf("%w: session %s is %s", ErrAlreadyActive, s.sess.id, s.sess.state)
	}
	prev := s.currentState()
	s.generation++
	s.images.Purge()
	s.sess = &session{
		id:     uuid.NewString(),
		region: region,
		state:  StateInitialized,
		store:  composite.NewStore(0, s.opts.InitialRows),
	}
	s.logger.Info("scroll session initialized", "session", s.sess.id, "region", region.String())
	s.notify(prev, StateInitialized)
	return s.sess.id, nil
}

// Capture snapshots the session region through the capture provider and
// moves the session to Capturing. The composite is not touched; pass the
// frame to HandleImage. On ErrCaptureFailed the state is unchanged and the
// call may be retried.
func (s *Service) Capture() (capture.Frame, error) {
	s.pipeline.Lock()
	defer s.pipeline.Unlock()
	return s.capture()
}

// HandleImage stitches frame onto the composite. A frame pixel-identical to
// the previous one is a no-op reported as a duplicate. A width mismatch
// fails with ErrSizeMismatch and leaves the composite unchanged.
func (s *Service) HandleImage(frame capture.Frame) (OverlapResult, error) {
	s.pipeline.Lock()
	defer s.pipeline.Unlock()
	return s.handleImage(frame)
}

// CaptureAndHandle runs Capture then HandleImage without letting another
// frame in between.
func (s *Service) CaptureAndHandle() (capture.Frame, OverlapResult, error) {
	s.pipeline.Lock()
	defer s.pipeline.Unlock()
	frame, err := s.capture()
	if err != nil {
		return capture.Frame{}, OverlapResult{}, err
	}
	res, err := s.handleImage(frame)
	return frame, res, err
}

func (s *Service) capture() (capture.Frame, error) {
	s.mu.Lock()
	sess, gen, err := s.openSession()
	if err != nil {
		s.mu.Unlock()
		return capture.Frame{}, err
	}
	region := sess.region
	s.mu.Unlock()

	if s.collab.Capture == nil {
		return capture.Frame{}, fmt.Errorf("%w: no capture provider", ErrCaptureFailed)
	}
	start := time.Now()
	frame, err := s.collab.Capture.CaptureRegion(region)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return capture.Frame{}, fmt.Errorf("%w: capture discarded", ErrSessionReplaced)
	}
	if sess.state == StateFinalized {
		return capture.Frame{}, fmt.Errorf("%w: session %s finished during capture", ErrInvalidState, sess.id)
	}
	if err == nil && frame.Empty() {
		err = capture.ErrEmptyRegion
	}
	if err != nil {
		sess.failed++
		s.logger.Warn("scroll capture failed", "session", sess.id, "region", region.String(), "error", err)
		return capture.Frame{}, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	sess.captures++
	sess.captureNanos += uint64(elapsed.Nanoseconds())
	sess.sequence++
	frame.Sequence = sess.sequence
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}
	sess.lastCapture = frame.CapturedAt
	s.transition(sess, StateCapturing)
	s.logger.Debug("scroll frame captured", "session", sess.id, "sequence", frame.Sequence,
		"width", frame.Width(), "height", frame.Height(), "elapsed", elapsed)
	return frame, nil
}

func (s *Service) handleImage(frame capture.Frame) (OverlapResult, error) {
	s.mu.Lock()
	sess, gen, err := s.openSession()
	if err != nil {
		s.mu.Unlock()
		return OverlapResult{}, err
	}
	if frame.Empty() {
		s.mu.Unlock()
		return OverlapResult{}, fmt.Errorf("%w: empty frame", ErrSizeMismatch)
	}
	if w := sess.store.Width(); w != 0 && frame.Width() != w {
		s.mu.Unlock()
		return OverlapResult{}, fmt.Errorf("%w: frame width %d, session width %d", ErrSizeMismatch, frame.Width(), w)
	}
	if sess.last != nil && stitch.Equal(sess.last, frame.Image) {
		sess.duplicates++
		s.transition(sess, StateCapturing)
		s.mu.Unlock()
		s.logger.Debug("scroll frame repeated", "session", sess.id, "sequence", frame.Sequence)
		return OverlapResult{Offset: frame.Height(), Confidence: 1, Duplicate: true}, nil
	}
	tail := sess.store.Tail(frame.Height())
	s.mu.Unlock()

	res := OverlapResult{Confidence: 1}
	if tail != nil {
		res = stitch.DetectOverlap(tail, frame.Image, s.opts.Stitch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return OverlapResult{}, fmt.Errorf("%w: frame discarded", ErrSessionReplaced)
	}
	if sess.state == StateFinalized {
		return OverlapResult{}, fmt.Errorf("%w: session %s finished during stitch", ErrInvalidState, sess.id)
	}
	if res.Duplicate {
		sess.duplicates++
	} else {
		if err := sess.store.Append(frame.Image, res.Offset); err != nil {
			return OverlapResult{}, err
		}
		sess.appended++
	}
	sess.last = frame.Image
	s.transition(sess, StateCapturing)
	w, h := sess.store.Size()
	s.logger.Debug("scroll frame stitched", "session", sess.id, "sequence", frame.Sequence,
		"offset", res.Offset, "confidence", res.Confidence, "duplicate", res.Duplicate,
		"width", w, "height", h)
	return res, nil
}

// openSession returns the session accepting frames. Caller holds s.mu.
func (s *Service) openSession() (*session, uint64, error) {
	if s.sess == nil {
		return nil, 0, ErrNotInitialized
	}
	if s.sess.state == StateFinalized {
		return nil, 0, fmt.Errorf("%w: session %s is finalized", ErrInvalidState, s.sess.id)
	}
	return s.sess, s.generation, nil
}

// Size returns the composite dimensions; (0, 0) when idle or empty.
func (s *Service) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return 0, 0
	}
	return s.sess.store.Size()
}

// State returns the current session state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentState()
}

func (s *Service) currentState() State {
	if s.sess == nil {
		return StateIdle
	}
	return s.sess.state
}

// SessionID returns the active session identifier, empty when idle.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ""
	}
	return s.sess.id
}

// Snapshot returns a read-only view of the composite for saving. It is only
// valid in Capturing or Finalized with at least one stitched row.
func (s *Service) Snapshot() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, _, err := s.savable()
	return img, err
}

func (s *Service) savable() (*image.RGBA, string, error) {
	if s.sess == nil {
		return nil, "", ErrNotInitialized
	}
	if st := s.sess.state; st != StateCapturing && st != StateFinalized {
		return nil, "", fmt.Errorf("%w: cannot save while %s", ErrInvalidState, st)
	}
	img := s.sess.store.Snapshot()
	if img == nil {
		return nil, "", fmt.Errorf("%w: composite is empty", ErrInvalidState)
	}
	return img, s.sess.id, nil
}

// SaveToFile encodes the composite to path. The state does not change, so
// more frames may be stitched and saved again afterwards.
func (s *Service) SaveToFile(path, format string) error {
	s.mu.Lock()
	img, id, err := s.savable()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.collab.Files == nil {
		return fmt.Errorf("%w: no file writer", ErrEncodeFailed)
	}
	if err := s.collab.Files.WriteImageFile(path, img, format); err != nil {
		s.logger.Error("scroll save to file failed", "session", id, "path", path, "error", err)
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	s.logger.Info("scroll composite saved", "session", id, "path", path,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return nil
}

// SaveToClipboard places the composite on the clipboard without changing
// state.
func (s *Service) SaveToClipboard() error {
	s.mu.Lock()
	img, id, err := s.savable()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.collab.Clipboard == nil {
		return fmt.Errorf("%w: no clipboard writer", ErrEncodeFailed)
	}
	if err := s.collab.Clipboard.WriteImage(img); err != nil {
		s.logger.Error("scroll save to clipboard failed", "session", id, "error", err)
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	s.logger.Info("scroll composite copied", "session", id,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return nil
}

// ImageData returns the composite encoded by the configured encoder,
// downscaled to maxWidth when positive. Encodings are cached until the
// composite grows or the session changes.
func (s *Service) ImageData(maxWidth int) ([]byte, error) {
	if maxWidth < 0 {
		maxWidth = 0
	}
	s.mu.Lock()
	if s.sess == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	img := s.sess.store.Snapshot()
	key := imageKey{generation: s.generation, height: s.sess.store.Height(), maxWidth: maxWidth}
	s.mu.Unlock()
	if img == nil {
		return nil, fmt.Errorf("%w: composite is empty", ErrInvalidState)
	}
	if data, ok := s.images.Get(key); ok {
		return data, nil
	}
	if s.collab.Encode == nil {
		return nil, fmt.Errorf("%w: no image encoder", ErrEncodeFailed)
	}
	data, err := s.collab.Encode(img, maxWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	s.images.Add(key, data)
	return data, nil
}

// Finish moves a Capturing session to Finalized. Further frames are
// rejected; saves keep working until Clear or the next Init.
func (s *Service) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ErrNotInitialized
	}
	switch s.sess.state {
	case StateFinalized:
		return nil
	case StateCapturing:
		s.transition(s.sess, StateFinalized)
		return nil
	default:
		return fmt.Errorf("%w: cannot finish while %s", ErrInvalidState, s.sess.state)
	}
}

// Clear releases the session from any state and returns to Idle. In-flight
// captures and stitches are invalidated.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.images.Purge()
	if s.sess == nil {
		return
	}
	prev, id := s.sess.state, s.sess.id
	s.sess = nil
	s.logger.Info("scroll session cleared", "session", id)
	s.notify(prev, StateIdle)
}

// Stats returns a snapshot of session counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return Stats{State: StateIdle}
	}
	sess := s.sess
	var avg time.Duration
	avgMicros := 0.0
	if sess.captures > 0 && sess.captureNanos > 0 {
		avg = time.Duration(sess.captureNanos / sess.captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	w, h := sess.store.Size()
	return Stats{
		SessionID:        sess.id,
		State:            sess.state,
		Captures:         sess.captures,
		FailedCaptures:   sess.failed,
		Appended:         sess.appended,
		Duplicates:       sess.duplicates,
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      sess.lastCapture,
		Sequence:         sess.sequence,
		Width:            w,
		Height:           h,
		BufferBytes:      sess.store.Capacity(),
	}
}

// transition moves sess to next and notifies listeners. Caller holds s.mu.
func (s *Service) transition(sess *session, next State) {
	prev := sess.state
	if prev == next {
		return
	}
	sess.state = next
	s.logger.Debug("scroll state transition", "session", sess.id, "from", prev.String(), "to", next.String())
	s.notify(prev, next)
}

func (s *Service) notify(prev, next State) {
	if prev == next {
		return
	}
	for _, l := range s.listeners {
		func() {
			defer recoverLog(s.logger, "scroll listener panic")
			l(prev, next)
		}()
	}
}

func recoverLog(logger *slog.Logger, msg string) {
	if r := recover(); r != nil {
		logger.Error(msg, "error", r)
	}
}
