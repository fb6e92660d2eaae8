// Package composite owns the growing pixel buffer of a stitched scroll
// capture. It has no capture or alignment logic of its own.
package composite

import (
	"errors"
	"fmt"
	"image"
)

// ErrSizeMismatch is returned when a frame's width differs from the
// composite width.
var ErrSizeMismatch = errors.New("size mismatch")

// Store holds the composite image as a single row-major RGBA buffer whose
// width is fixed by the first frame and whose height only grows. Rows that
// have been written are never modified again until Reset, so views returned
// by Snapshot and Tail stay valid while further frames are appended.
//
// Store is not safe for concurrent use; the orchestrator serializes access.
type Store struct {
	pix         []byte
	width       int
	height      int
	initialRows int
}

// NewStore returns an empty store. width fixes the composite width up front;
// 0 adopts the width of the first appended frame. initialRows sizes the
// first allocation (0 means the first frame's height).
func NewStore(width, initialRows int) *Store {
	if width < 0 {
		width = 0
	}
	if initialRows < 0 {
		initialRows = 0
	}
	return &Store{width: width, initialRows: initialRows}
}

// Append copies the rows of frame starting at skipRows onto the end of the
// composite. A skipRows at or beyond the frame height appends nothing. On
// error the store is left untouched.
func (s *Store) Append(frame *image.RGBA, skipRows int) error {
	if frame == nil {
		return fmt.Errorf("%w: nil frame", ErrSizeMismatch)
	}
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: empty frame %dx%d", ErrSizeMismatch, w, h)
	}
	if s.width != 0 && w != s.width {
		return fmt.Errorf("%w: frame width %d, composite width %d", ErrSizeMismatch, w, s.width)
	}
	if skipRows < 0 {
		skipRows = 0
	}
	if skipRows >= h {
		return nil
	}
	if s.width == 0 {
		s.width = w
	}
	rows := h - skipRows
	rowBytes := s.width * 4
	s.grow(rows)
	off := s.height * rowBytes
	for y := skipRows; y < h; y++ {
		start := frame.PixOffset(b.Min.X, b.Min.Y+y)
		copy(s.pix[off:off+rowBytes], frame.Pix[start:start+rowBytes])
		off += rowBytes
	}
	s.height += rows
	return nil
}

// grow makes room for rows more rows, doubling capacity when exceeded.
func (s *Store) grow(rows int) {
	rowBytes := s.width * 4
	need := (s.height + rows) * rowBytes
	if need <= cap(s.pix) {
		s.pix = s.pix[:need]
		return
	}
	newCap := 2 * cap(s.pix)
	if s.pix == nil && s.initialRows > 0 {
		newCap = s.initialRows * rowBytes
	}
	if newCap < need {
		newCap = need
	}
	buf := make([]byte, need, newCap)
	copy(buf, s.pix[:s.height*rowBytes])
	s.pix = buf
}

// Width returns the composite width, 0 while it is still undetermined.
func (s *Store) Width() int { return s.width }

// Height returns the number of rows accumulated so far.
func (s *Store) Height() int { return s.height }

// Size returns the composite dimensions. An empty store reports (0, 0) even
// when the width has been fixed up front.
func (s *Store) Size() (int, int) {
	if s.height == 0 {
		return 0, 0
	}
	return s.width, s.height
}

// Capacity returns the number of bytes currently reserved for the buffer.
func (s *Store) Capacity() int { return cap(s.pix) }

// Snapshot returns a read-only view of the composite as it stands, or nil
// when nothing has been appended. The view shares memory with the store and
// must not be written to.
func (s *Store) Snapshot() *image.RGBA {
	if s.height == 0 {
		return nil
	}
	n := s.height * s.width * 4
	return &image.RGBA{
		Pix:    s.pix[:n:n],
		Stride: s.width * 4,
		Rect:   image.Rect(0, 0, s.width, s.height),
	}
}

// Tail returns a read-only view of the last rows rows of the composite,
// clamped to the current height. The view is anchored at the origin.
func (s *Store) Tail(rows int) *image.RGBA {
	if s.height == 0 || rows <= 0 {
		return nil
	}
	if rows > s.height {
		rows = s.height
	}
	rowBytes := s.width * 4
	start := (s.height - rows) * rowBytes
	end := s.height * rowBytes
	return &image.RGBA{
		Pix:    s.pix[start:end:end],
		Stride: rowBytes,
		Rect:   image.Rect(0, 0, s.width, rows),
	}
}

// Reset drops the buffer. The width returns to width (0 to adopt the next
// frame's width).
func (s *Store) Reset(width int) {
	if width < 0 {
		width = 0
	}
	s.pix = nil
	s.height = 0
	s.width = width
}
