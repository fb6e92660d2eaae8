package scroll

import (
	"bytes"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/soocke/pixel-scroll-go/domain/capture"
	"github.com/soocke/pixel-scroll-go/domain/stitch"
)

func TestService_InitTwiceFailsAlreadyActive(t *testing.T) {
	sc := newScroller(64, 200, 40, 10)
	s := newTestService(sc)
	if _, err := s.Init(sc.region()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := s.Init(sc.region()); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if st := s.State(); st != StateInitialized {
		t.Fatalf("state = %v, want initialized", st)
	}
	if _, _, err := s.CaptureAndHandle(); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := s.Init(sc.region()); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive while capturing, got %v", err)
	}
	if st := s.State(); st != StateCapturing {
		t.Fatalf("state = %v, want capturing", st)
	}
}

func TestService_InitRejectsEmptyRegion(t *testing.T) {
	s := newTestService(nil)
	if _, err := s.Init(image.Rectangle{}); !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("expected ErrInvalidRegion, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("failed init changed state")
	}
}

func TestService_HeightIsFramesMinusOverlaps(t *testing.T) {
	sc := newScroller(96, 400, 50, 17)
	s := newTestService(sc)
	_, _ = s.Init(sc.region())
	sumHeights, sumOverlaps := 0, 0
	for i := 0; i < 8; i++ {
		frame, err := s.Capture()
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		res, err := s.HandleImage(frame)
		if err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
		sumHeights += frame.Height()
		sumOverlaps += res.Offset
	}
	w, h := s.Size()
	if w != 96 || h != sumHeights-sumOverlaps {
		t.Fatalf("size = %dx%d, want 96x%d", w, h, sumHeights-sumOverlaps)
	}
	// Every step scrolls 17 rows, so the composite is the page prefix.
	if h != 50+7*17 {
		t.Fatalf("height = %d, want %d", h, 50+7*17)
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !stitch.Equal(snap, window(sc.page, 0, h)) {
		t.Fatalf("composite does not reproduce the scrolled page")
	}
}

func TestService_EndOfContentIsDuplicate(t *testing.T) {
	sc := newScroller(64, 100, 40, 30)
	s := newTestService(sc)
	_, _ = s.Init(sc.region())
	var last OverlapResult
	for i := 0; i < 5; i++ {
		_, res, err := s.CaptureAndHandle()
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		last = res
	}
	if !last.Duplicate {
		t.Fatalf("expected duplicate once page bottom is reached, got %+v", last)
	}
	if _, h := s.Size(); h != 100 {
		t.Fatalf("height = %d, want full page 100", h)
	}
	if st := s.Stats(); st.Duplicates < 2 || st.Appended != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestService_RepeatedHandleImageIsNoOp(t *testing.T) {
	sc := newScroller(64, 200, 40, 10)
	s := newTestService(sc)
	_, _ = s.Init(sc.region())
	frame, _ := s.Capture()
	if _, err := s.HandleImage(frame); err != nil {
		t.Fatalf("handle: %v", err)
	}
	res, err := s.HandleImage(frame)
	if err != nil {
		t.Fatalf("repeat handle: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("repeat should be duplicate, got %+v", res)
	}
	if _, h := s.Size(); h != 40 {
		t.Fatalf("height = %d, want 40", h)
	}
}

func TestService_WidthMismatchLeavesCompositeUnchanged(t *testing.T) {
	sc := newScroller(64, 200, 40, 10)
	s := newTestService(sc)
	_, _ = s.Init(sc.region())
	if _, _, err := s.CaptureAndHandle(); err != nil {
		t.Fatalf("capture: %v", err)
	}
	before, _ := s.Snapshot()
	beforePix := append([]byte(nil), before.Pix...)
	_, err := s.HandleImage(capture.NewFrame(noisePage(65, 40, 1)))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	after, _ := s.Snapshot()
	if !bytes.Equal(beforePix, after.Pix) || after.Bounds() != before.Bounds() {
		t.Fatalf("composite changed after failed handle")
	}
	if _, err := s.HandleImage(capture.Frame{}); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch for empty frame, got %v", err)
	}
}

func TestService_ClearThenFreshSession(t *testing.T) {
	sc := newScroller(64, 300, 40, 10)
	s := newTestService(sc)
	_, _ = s.Init(sc.region())
	for i := 0; i < 3; i++ {
		_, _, _ = s.CaptureAndHandle()
	}
	s.Clear()
	if w, h := s.Size(); w != 0 || h != 0 {
		t.Fatalf("size after clear = %dx%d", w, h)
	}
	if s.State() != StateIdle {
		t.Fatalf("state after clear = %v", s.State())
	}
	_, _ = s.Init(sc.region())
	frame, err := s.Capture()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := s.HandleImage(frame); err != nil {
		t.Fatalf("handle: %v", err)
	}
	snap, _ := s.Snapshot()
	if !stitch.Equal(snap, frame.Image) {
		t.Fatalf("fresh composite differs from first frame")
	}
	if frame.Sequence != 1 {
		t.Fatalf("sequence not reset: %d", frame.Sequence)
	}
}

func TestService_CaptureFailureKeepsState(t *testing.T) {
	p := &failingProvider{}
	s := newTestService(p)
	_, _ = s.Init(image.Rect(0, 0, 10, 10))
	_, err := s.Capture()
	if !errors.Is(err, ErrCaptureFailed) || !errors.Is(err, errDenied) {
		t.Fatalf("expected wrapped capture failure, got %v", err)
	}
	if !Retryable(err) {
		t.Fatalf("capture failure should be retryable")
	}
	if s.State() != StateInitialized {
		t.Fatalf("state changed on failure: %v", s.State())
	}
	_, _ = s.Capture()
	if st := s.Stats(); st.FailedCaptures != 2 || st.Captures != 0 || p.calls != 2 {
		t.Fatalf("unexpected stats %+v calls=%d", st, p.calls)
	}
}

func TestService_OperationsBeforeInit(t *testing.T) {
	s := newTestService(newScroller(8, 20, 10, 1))
	if _, err := s.Capture(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("capture: expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.HandleImage(capture.NewFrame(noisePage(8, 8, 1))); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("handle: expected ErrNotInitialized, got %v", err)
	}
	if err := s.SaveToFile("x.png", ""); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("save: expected ErrNotInitialized, got %v", err)
	}
	if err := s.Finish(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("finish: expected ErrNotInitialized, got %v", err)
	}
	if w, h := s.Size(); w != 0 || h != 0 {
		t.Fatalf("idle size = %dx%d", w, h)
	}
	s.Clear() // always succeeds
}

func TestService_ProgressiveSave(t *testing.T) {
	sc := newScroller(64, 300, 40, 10)
	files := &recordingFiles{}
	clip := &recordingClipboard{}
	s := NewService(discardLogger, Collaborators{Capture: sc, Files: files, Clipboard: clip}, DefaultOptions())
	_, _ = s.Init(sc.region())
	if err := s.SaveToFile("early.png", ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("save before capture: expected ErrInvalidState, got %v", err)
	}
	_, _, _ = s.CaptureAndHandle()
	if err := s.SaveToFile("a.png", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveToClipboard(); err != nil {
		t.Fatalf("clipboard: %v", err)
	}
	if s.State() != StateCapturing {
		t.Fatalf("save changed state to %v", s.State())
	}
	_, _, _ = s.CaptureAndHandle()
	if err := s.SaveToFile("b.png", "png"); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if len(files.paths) != 2 || files.heights[0] != 40 || files.heights[1] != 50 {
		t.Fatalf("unexpected saves %v %v", files.paths, files.heights)
	}
	if clip.writes != 1 {
		t.Fatalf("clipboard writes = %d", clip.writes)
	}
}

func TestService_SaveErrorsWrapEncodeFailed(t *testing.T) {
	sc := newScroller(64, 300, 40, 10)
	boom := errors.New("disk full")
	s := NewService(discardLogger, Collaborators{
		Capture:   sc,
		Files:     &recordingFiles{err: boom},
		Clipboard: &recordingClipboard{err: boom},
	}, DefaultOptions())
	_, _ = s.Init(sc.region())
	_, _, _ = s.CaptureAndHandle()
	if err := s.SaveToFile("a.png", ""); !errors.Is(err, ErrEncodeFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped encode failure, got %v", err)
	}
	if err := s.SaveToClipboard(); !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("expected encode failure, got %v", err)
	}
	if s.State() != StateCapturing {
		t.Fatalf("failed save changed state")
	}
}

func TestService_FinishRejectsFramesAndInitReplaces(t *testing.T) {
	sc := newScroller(64, 300, 40, 10)
	files := &recordingFiles{}
	s := NewService(discardLogger, Collaborators{Capture: sc, Files: files}, DefaultOptions())
	_, _ = s.Init(sc.region())
	if err := s.Finish(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("finish before capture: expected ErrInvalidState, got %v", err)
	}
	_, _, _ = s.CaptureAndHandle()
	if err := s.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("finish should be idempotent: %v", err)
	}
	if _, err := s.Capture(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("capture after finish: expected ErrInvalidState, got %v", err)
	}
	if err := s.SaveToFile("final.png", ""); err != nil {
		t.Fatalf("save after finish: %v", err)
	}
	first := s.SessionID()
	second, err := s.Init(sc.region())
	if err != nil {
		t.Fatalf("init after finish: %v", err)
	}
	if second == first || s.State() != StateInitialized {
		t.Fatalf("finalized session not replaced")
	}
	if _, h := s.Size(); h != 0 {
		t.Fatalf("replacement session not empty: %d", h)
	}
}

type blockingProvider struct {
	started chan struct{}
	release chan struct{}
	frame   *image.RGBA
}

func (p *blockingProvider) CaptureRegion(image.Rectangle) (capture.Frame, error) {
	close(p.started)
	<-p.release
	return capture.NewFrame(p.frame), nil
}

func TestService_ClearDuringCaptureDiscardsResult(t *testing.T) {
	p := &blockingProvider{started: make(chan struct{}), release: make(chan struct{}), frame: noisePage(16, 16, 1)}
	s := newTestService(p)
	_, _ = s.Init(image.Rect(0, 0, 16, 16))
	errc := make(chan error, 1)
	go func() {
		_, _, err := s.CaptureAndHandle()
		errc <- err
	}()
	<-p.started
	done := make(chan struct{})
	go func() { s.Clear(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("clear blocked behind in-flight capture")
	}
	close(p.release)
	if err := <-errc; !errors.Is(err, ErrSessionReplaced) {
		t.Fatalf("expected ErrSessionReplaced, got %v", err)
	}
	if w, h := s.Size(); w != 0 || h != 0 || s.State() != StateIdle {
		t.Fatalf("discarded capture leaked into state")
	}
}

func TestService_ConcurrentCapturesStitchInOrder(t *testing.T) {
	sc := newScroller(48, 1000, 40, 12)
	s := newTestService(sc)
	_, _ = s.Init(sc.region())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.CaptureAndHandle(); err != nil {
				t.Errorf("capture: %v", err)
			}
		}()
	}
	wg.Wait()
	_, h := s.Size()
	if h != 40+15*12 {
		t.Fatalf("height = %d, want %d", h, 40+15*12)
	}
	snap, _ := s.Snapshot()
	if !stitch.Equal(snap, window(sc.page, 0, h)) {
		t.Fatalf("concurrent captures were stitched out of order")
	}
}

func TestService_ImageDataCachedUntilGrowth(t *testing.T) {
	sc := newScroller(32, 300, 20, 5)
	calls := 0
	enc := func(img *image.RGBA, maxWidth int) ([]byte, error) {
		calls++
		return []byte{byte(img.Bounds().Dy()), byte(maxWidth)}, nil
	}
	s := NewService(discardLogger, Collaborators{Capture: sc, Encode: enc}, DefaultOptions())
	_, _ = s.Init(sc.region())
	if _, err := s.ImageData(0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on empty composite, got %v", err)
	}
	_, _, _ = s.CaptureAndHandle()
	a, _ := s.ImageData(16)
	b, _ := s.ImageData(16)
	if calls != 1 || !bytes.Equal(a, b) {
		t.Fatalf("expected cached encode, calls=%d", calls)
	}
	_, _, _ = s.CaptureAndHandle()
	c, _ := s.ImageData(16)
	if calls != 2 || c[0] != 25 {
		t.Fatalf("expected re-encode after growth, calls=%d data=%v", calls, c)
	}
	s.Clear()
	if _, err := s.ImageData(16); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized after clear, got %v", err)
	}
}

func TestService_ListenerSeesTransitions(t *testing.T) {
	sc := newScroller(32, 300, 20, 5)
	s := newTestService(sc)
	var seq []State
	s.AddListener(func(prev, next State) { seq = append(seq, next) })
	_, _ = s.Init(sc.region())
	_, _, _ = s.CaptureAndHandle()
	_, _, _ = s.CaptureAndHandle()
	_ = s.Finish()
	s.Clear()
	want := []State{StateInitialized, StateCapturing, StateFinalized, StateIdle}
	if len(seq) != len(want) {
		t.Fatalf("transitions = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seq, want)
		}
	}
}

func TestService_StatsTrackSession(t *testing.T) {
	sc := newScroller(32, 300, 20, 5)
	s := newTestService(sc)
	if st := s.Stats(); st.State != StateIdle || st.SessionID != "" {
		t.Fatalf("idle stats %+v", st)
	}
	id, _ := s.Init(sc.region())
	for i := 0; i < 3; i++ {
		_, _, _ = s.CaptureAndHandle()
	}
	st := s.Stats()
	if st.SessionID != id || st.Captures != 3 || st.Appended != 3 || st.Sequence != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.Width != 32 || st.Height != 30 || st.BufferBytes < 32*30*4 {
		t.Fatalf("unexpected size stats %+v", st)
	}
	if st.LastCapture.IsZero() {
		t.Fatalf("last capture not recorded")
	}
}

func TestService_PanickingListenerDoesNotWedgeSession(t *testing.T) {
	sc := newScroller(64, 200, 40, 10)
	s := newTestService(sc)
	s.AddListener(func(prev, next State) { panic("listener bug") })
	if _, err := s.Init(sc.region()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, _, err := s.CaptureAndHandle(); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if got := s.State(); got != StateCapturing {
		t.Fatalf("state = %s, want capturing", got)
	}
	s.Clear()
	if w, h := s.Size(); w != 0 || h != 0 {
		t.Fatalf("size after clear = %dx%d", w, h)
	}
}

// gatedProvider serves viewports of page. Captures after the first block
// until release is closed.
type gatedProvider struct {
	page    *image.RGBA
	h       int
	calls   int
	started chan struct{}
	release chan struct{}
}

func (p *gatedProvider) CaptureRegion(image.Rectangle) (capture.Frame, error) {
	p.calls++
	if p.calls > 1 {
		close(p.started)
		<-p.release
	}
	return capture.NewFrame(window(p.page, (p.calls-1)*10, p.h)), nil
}

func TestService_FinishDuringCaptureRejectsFrame(t *testing.T) {
	p := &gatedProvider{page: noisePage(32, 100, 3), h: 32, started: make(chan struct{}), release: make(chan struct{})}
	s := newTestService(p)
	if _, err := s.Init(image.Rect(0, 0, 32, 32)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, _, err := s.CaptureAndHandle(); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	errc := make(chan error, 1)
	go func() {
		_, _, err := s.CaptureAndHandle()
		errc <- err
	}()
	<-p.started
	if err := s.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	close(p.release)
	if err := <-errc; !errors.Is(err, ErrInvalidState) {
		t.Fatalf("in-flight capture err = %v, want ErrInvalidState", err)
	}
	if st := s.State(); st != StateFinalized {
		t.Fatalf("state = %s, want finalized", st)
	}
	if _, h := s.Size(); h != 32 {
		t.Fatalf("height = %d, want 32 (frame must not be appended)", h)
	}
}
