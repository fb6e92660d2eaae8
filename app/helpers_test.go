package app

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/spf13/afero"

	"github.com/soocke/pixel-scroll-go/config"
	"github.com/soocke/pixel-scroll-go/domain/capture"
)

var quietLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func noisePage(w, h int) *image.RGBA {
	r := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.Intn(256))
		img.Pix[i+1] = uint8(r.Intn(256))
		img.Pix[i+2] = uint8(r.Intn(256))
		img.Pix[i+3] = 0xFF
	}
	return img
}

func viewport(page *image.RGBA, y, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, page.Bounds().Dx(), h))
	copy(out.Pix, page.Pix[y*page.Stride:(y+h)*page.Stride])
	return out
}

// pageScroller returns successive viewports of a page, advancing step rows
// per capture and sticking at the bottom.
type pageScroller struct {
	mu   sync.Mutex
	page *image.RGBA
	h    int
	step int
	pos  int
}

func newPageScroller() *pageScroller {
	return &pageScroller{page: noisePage(40, 200), h: 50, step: 17}
}

func (p *pageScroller) CaptureRegion(r image.Rectangle) (capture.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	y := min(p.pos, p.page.Bounds().Dy()-p.h)
	p.pos += p.step
	f := capture.NewFrame(viewport(p.page, y, p.h))
	f.Region = r
	return f, nil
}

var errScreenLocked = errors.New("screen locked")

type brokenProvider struct{ calls int }

func (b *brokenProvider) CaptureRegion(image.Rectangle) (capture.Frame, error) {
	b.calls++
	return capture.Frame{}, errScreenLocked
}

type memClipboard struct{ heights []int }

func (c *memClipboard) WriteImage(img *image.RGBA) error {
	c.heights = append(c.heights, img.Bounds().Dy())
	return nil
}

type fixedLocator struct {
	rect image.Rectangle
	err  error
}

func (l fixedLocator) ActiveWindowRect() (image.Rectangle, error) { return l.rect, l.err }

func newTestContainer(p capture.Provider) (*AppContainer, *memClipboard) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = "/out"
	cfg.PreviewMaxWidth = 20
	clip := &memClipboard{}
	c := BuildContainer(cfg, quietLogger, Deps{
		Capture:   p,
		Clipboard: clip,
		Windows:   fixedLocator{rect: image.Rect(100, 100, 140, 150)},
		FS:        afero.NewMemMapFs(),
	})
	return c, clip
}
