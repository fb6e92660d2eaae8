// Package output persists composites: image files, the system clipboard and
// encoded previews.
package output

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
)

// DefaultJPEGQuality is used when a writer is built with an out-of-range
// quality.
const DefaultJPEGQuality = 92

// fileMode matches what os.Create would give a saved image under the usual
// umask. Temporary files start out owner-only.
const fileMode = 0o644

// FileWriter encodes images onto a filesystem. Files are written to a
// temporary name and renamed into place so a failed encode never leaves a
// truncated image behind.
type FileWriter struct {
	fs          afero.Fs
	jpegQuality int
}

// NewFileWriter returns a writer on fs. A nil fs means the OS filesystem.
func NewFileWriter(fs afero.Fs, jpegQuality int) *FileWriter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &FileWriter{fs: fs, jpegQuality: jpegQuality}
}

// ResolveFormat picks the encoding for path. An explicit format (png, jpg,
// jpeg, bmp, gif, tif, tiff) wins over the file extension.
func ResolveFormat(path, format string) (imaging.Format, error) {
	if format != "" {
		return imaging.FormatFromExtension(format)
	}
	return imaging.FormatFromFilename(path)
}

// WriteImageFile encodes img to path, creating parent directories.
func (w *FileWriter) WriteImageFile(path string, img *image.RGBA, format string) error {
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("output: empty image")
	}
	f, err := ResolveFormat(path, format)
	if err != nil {
		return fmt.Errorf("output: %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := afero.TempFile(w.fs, dir, ".pixel-scroll-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	encErr := imaging.Encode(tmp, img, f, imaging.JPEGQuality(w.jpegQuality))
	closeErr := tmp.Close()
	if encErr == nil {
		encErr = closeErr
	}
	if encErr != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("output: encode %s: %w", path, encErr)
	}
	if err := w.fs.Chmod(tmpName, fileMode); err != nil {
		_ = w.fs.Remove(tmpName)
		return err
	}
	if err := w.fs.Rename(tmpName, path); err != nil {
		_ = w.fs.Remove(tmpName)
		return err
	}
	return nil
}
