//go:build linux

package window

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
)

type x11Locator struct{}

// NewLocator returns the X11 window locator.
func NewLocator() Locator { return x11Locator{} }

// ActiveWindowRect returns the client area of the EWMH active window in
// root coordinates, without window manager decorations.
func (x11Locator) ActiveWindowRect() (image.Rectangle, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("window: connect X11: %w", err)
	}
	defer xu.Conn().Close()

	win, err := ewmh.ActiveWindowGet(xu)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("window: active window: %w", err)
	}
	if win == 0 {
		return image.Rectangle{}, fmt.Errorf("window: no active window")
	}
	geom, err := xproto.GetGeometry(xu.Conn(), xproto.Drawable(win)).Reply()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("window: geometry: %w", err)
	}
	pos, err := xproto.TranslateCoordinates(xu.Conn(), win, xu.RootWin(), 0, 0).Reply()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("window: translate coordinates: %w", err)
	}
	x, y := int(pos.DstX), int(pos.DstY)
	return image.Rect(x, y, x+int(geom.Width), y+int(geom.Height)), nil
}
