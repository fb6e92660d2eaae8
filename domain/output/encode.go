package output

import (
	"bytes"
	"errors"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// EncodePNG encodes img as PNG favouring speed over size, since composites
// are re-encoded for every preview poll.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("output: nil image")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ScaleToWidth returns src scaled so its width is at most maxW, preserving
// aspect ratio. Sources that already fit, or maxW <= 0, are returned as is.
func ScaleToWidth(src *image.RGBA, maxW int) *image.RGBA {
	if src == nil || maxW <= 0 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW {
		return src
	}
	newH := int(float64(h)*float64(maxW)/float64(w) + 0.5)
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// PreviewPNG scales img to maxWidth and encodes it as PNG.
func PreviewPNG(img *image.RGBA, maxWidth int) ([]byte, error) {
	return EncodePNG(ScaleToWidth(img, maxWidth))
}
