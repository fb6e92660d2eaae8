package output

import (
	"fmt"
	"image"
	"sync"

	"golang.design/x/clipboard"
)

// SystemClipboard writes images to the OS clipboard as PNG. The clipboard
// backend is initialized on first use.
type SystemClipboard struct {
	once    sync.Once
	initErr error
}

// NewSystemClipboard returns the process clipboard writer.
func NewSystemClipboard() *SystemClipboard { return &SystemClipboard{} }

// WriteImage replaces the clipboard contents with img.
func (c *SystemClipboard) WriteImage(img *image.RGBA) error {
	c.once.Do(func() { c.initErr = clipboard.Init() })
	if c.initErr != nil {
		return fmt.Errorf("clipboard unavailable: %w", c.initErr)
	}
	data, err := EncodePNG(img)
	if err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtImage, data)
	return nil
}
