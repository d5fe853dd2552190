// Package writer publishes the merged guide as a gzip-compressed XMLTV file.
package writer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/raffaelramalhorosa/epgmerge/internal/models"
	"github.com/raffaelramalhorosa/epgmerge/internal/xmltv"
)

// Options controls how the guide is written.
type Options struct {
	Generator string
	// Level is a gzip compression level; 0 means gzip.DefaultCompression.
	Level int
}

// WriteFile encodes doc, compresses it and atomically replaces path. On error
// path is left untouched.
func WriteFile(path string, doc *models.Document, opts Options) (err error) {
	level := opts.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw, err := gzip.NewWriterLevel(tmp, level)
	if err != nil {
		return fmt.Errorf("gzip writer: %w", err)
	}
	zw.Name = filepath.Base(path)

	if err := xmltv.Encode(zw, doc, opts.Generator); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
