//go:build !linux

package window

import "image"

type unsupportedLocator struct{}

// NewLocator returns a locator that always fails with ErrUnsupported.
func NewLocator() Locator { return unsupportedLocator{} }

func (unsupportedLocator) ActiveWindowRect() (image.Rectangle, error) {
	return image.Rectangle{}, ErrUnsupported
}
