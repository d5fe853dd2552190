// Package fallback decides when a run has produced nothing usable and restores
// the last published guide in that case.
package fallback

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNoPrevious is returned by Restore when there is no previous artifact.
var ErrNoPrevious = errors.New("no previous artifact to fall back to")

// TotalFailure reports whether a run must fall back: no source was fetched,
// or nothing at all was retained from the ones that were.
func TotalFailure(sourcesOK, channels, programmes int) bool {
	return sourcesOK == 0 || (channels == 0 && programmes == 0)
}

// Guard copies the previous-good artifact over the output on total failure.
type Guard struct {
	Previous string
	Output   string
}

// Restore copies Previous to Output byte for byte. The output is written to a
// temporary file and renamed into place, so Output is never left partial.
func (g Guard) Restore() error {
	src, err := os.Open(g.Previous)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoPrevious, g.Previous)
	}
	if err != nil {
		return fmt.Errorf("open previous artifact: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat previous artifact: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNoPrevious, g.Previous)
	}

	dir := filepath.Dir(g.Output)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(g.Output)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("copy previous artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.Output); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
