package scroll

import (
	"errors"
	"image"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/soocke/pixel-scroll-go/domain/capture"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func noisePage(w, h int, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.Intn(256))
		img.Pix[i+1] = uint8(r.Intn(256))
		img.Pix[i+2] = uint8(r.Intn(256))
		img.Pix[i+3] = 0xFF
	}
	return img
}

func window(page *image.RGBA, y, h int) *image.RGBA {
	w := page.Bounds().Dx()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(out.Pix, page.Pix[y*page.Stride:(y+h)*page.Stride])
	return out
}

// scroller emulates a window scrolled by step rows between captures. Once
// the page bottom is reached it keeps returning the last viewport.
type scroller struct {
	mu    sync.Mutex
	page  *image.RGBA
	h     int
	step  int
	pos   int
	calls int
}

func newScroller(w, pageH, viewH, step int) *scroller {
	return &scroller{page: noisePage(w, pageH, 42), h: viewH, step: step}
}

func (s *scroller) CaptureRegion(r image.Rectangle) (capture.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	y := min(s.pos, s.page.Bounds().Dy()-s.h)
	s.pos += s.step
	f := capture.NewFrame(window(s.page, y, s.h))
	f.Region = r
	return f, nil
}

func (s *scroller) region() image.Rectangle {
	return image.Rect(0, 0, s.page.Bounds().Dx(), s.h)
}

var errDenied = errors.New("denied")

type failingProvider struct{ calls int }

func (p *failingProvider) CaptureRegion(image.Rectangle) (capture.Frame, error) {
	p.calls++
	return capture.Frame{}, errDenied
}

type recordingFiles struct {
	paths   []string
	heights []int
	err     error
}

func (f *recordingFiles) WriteImageFile(path string, img *image.RGBA, format string) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	f.heights = append(f.heights, img.Bounds().Dy())
	return nil
}

type recordingClipboard struct {
	writes int
	err    error
}

func (c *recordingClipboard) WriteImage(*image.RGBA) error {
	if c.err != nil {
		return c.err
	}
	c.writes++
	return nil
}

func newTestService(p capture.Provider) *Service {
	return NewService(discardLogger, Collaborators{Capture: p}, DefaultOptions())
}
