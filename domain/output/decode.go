package output

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"
)

// ToRGBA returns img as an opaque, origin-based *image.RGBA. Images that
// already qualify are returned without copying.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && opaque(rgba) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.Opaque, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func opaque(img *image.RGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xFF {
			return false
		}
	}
	return true
}

// DecodeImage decodes any format imaging understands into RGBA.
func DecodeImage(r io.Reader) (*image.RGBA, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return ToRGBA(img), nil
}

// OpenImage reads and decodes path from fs.
func OpenImage(fs afero.Fs, path string) (*image.RGBA, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeImage(f)
}
