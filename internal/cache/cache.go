// Package cache decides whether an existing build artifact is still reusable
// or must be invalidated and rebuilt.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
)

// Oracle judges artifact staleness against a rebuild threshold. It both
// judges and evicts: a stale artifact is deleted before the caller is told to
// rebuild, so a later run never observes a partially overwritten file's age.
type Oracle struct {
	threshold time.Duration
	now       func() time.Time
}

// New returns an Oracle with the given staleness threshold.
func New(threshold time.Duration) *Oracle {
	return &Oracle{threshold: threshold, now: time.Now}
}

// ShouldRebuild reports whether the artifact at path must be (re)built.
// A missing artifact must be built; an existing one must be rebuilt when its
// age exceeds the threshold, in which case it is removed first.
func (o *Oracle) ShouldRebuild(path string) (bool, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat artifact %q: %w", path, err)
	}
	if o.now().Sub(fi.ModTime()) > o.threshold {
		slog.Debug("Evicting stale artifact", logfields.Path(path))
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("failed to evict stale artifact %q: %w", path, err)
		}
		return true, nil
	}
	return false, nil
}

// Sweep removes every regular file in dir older than the threshold. It is the
// end-of-run garbage collection pass over leftover build artifacts,
// regardless of whether they correspond to a current matrix unit.
func (o *Oracle) Sweep(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read output directory %q: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %q: %w", entry.Name(), err)
		}
		if o.now().Sub(info.ModTime()) > o.threshold {
			path := filepath.Join(dir, entry.Name())
			slog.Info("Removing old build artifact", logfields.Path(path))
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove old artifact %q: %w", path, err)
			}
		}
	}
	return nil
}
