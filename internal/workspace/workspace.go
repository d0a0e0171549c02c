// Package workspace manages the tool's working directories and the
// process-wide mutual-exclusion lock guarding them.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
)

const prog = "cloudbuild"

// LockError reports another run already holding the workspace lock.
type LockError struct {
	Dir string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("%s already running in %q directory", prog, e.Dir)
}

// Workspace is the explicit handle to the working directories every stage
// operates on. The recipe fragment, the per-(branch,arch) builder
// configuration files and the output/cache directories are mutated in place,
// so the workspace holds an exclusive flock for the lifetime of one run.
type Workspace struct {
	dataDir   string
	workDir   string
	outDir    string
	imagesDir string
	noBuild   bool
	lockFile  *os.File
}

// Open creates the directory layout under dataDir and takes the run lock.
// An empty dataDir falls back to $XDG_DATA_HOME/cloudbuild (or
// ~/.local/share/cloudbuild). A non-empty builtImagesDir switches the
// workspace into no-build mode: images are read from there and the build
// stage is forbidden.
func Open(dataDir, builtImagesDir string) (*Workspace, error) {
	if dataDir == "" {
		base := os.Getenv("XDG_DATA_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to locate home directory: %w", err)
			}
			base = filepath.Join(home, ".local", "share")
		}
		dataDir = filepath.Join(base, prog)
	}
	dataDir, err := filepath.Abs(ExpandPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	w := &Workspace{
		dataDir:   dataDir,
		workDir:   filepath.Join(dataDir, "work"),
		outDir:    filepath.Join(dataDir, "out"),
		imagesDir: filepath.Join(dataDir, "images"),
	}
	if builtImagesDir != "" {
		abs, err := filepath.Abs(ExpandPath(builtImagesDir))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve built images directory: %w", err)
		}
		w.imagesDir = abs
		w.noBuild = true
	}

	for _, dir := range []string{w.dataDir, w.workDir, w.outDir, w.imagesDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory %q: %w", dir, err)
		}
	}
	if err := w.lock(); err != nil {
		return nil, err
	}
	slog.Debug("Workspace opened", logfields.Path(dataDir))
	return w, nil
}

// lock takes a non-blocking exclusive flock on <data>/cloudbuild.lock. The
// lock is released when the process exits or Close is called.
func (w *Workspace) lock() error {
	f, err := os.OpenFile(filepath.Join(w.dataDir, prog+".lock"), os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return &LockError{Dir: w.dataDir}
	}
	w.lockFile = f
	return nil
}

// Close releases the run lock.
func (w *Workspace) Close() error {
	if w.lockFile == nil {
		return nil
	}
	err := w.lockFile.Close()
	w.lockFile = nil
	return err
}

// DataDir is the workspace root.
func (w *Workspace) DataDir() string { return w.dataDir }

// WorkDir holds the profile checkout and generated builder configuration.
func (w *Workspace) WorkDir() string { return w.workDir }

// OutDir is the builder output directory doubling as the artifact cache.
func (w *Workspace) OutDir() string { return w.outDir }

// ImagesDir is the root of the local publish tree.
func (w *Workspace) ImagesDir() string { return w.imagesDir }

// ProfilesDir is the mkimage-profiles checkout inside the work directory.
func (w *Workspace) ProfilesDir() string { return filepath.Join(w.workDir, "mkimage-profiles") }

// AptDir holds the generated per-(branch,arch) apt configuration.
func (w *Workspace) AptDir() string { return filepath.Join(w.workDir, "apt") }

// NoBuild reports whether the workspace points at pre-built images, in which
// case the build stage must be skipped.
func (w *Workspace) NoBuild() bool { return w.noBuild }

// ExpandPath expands a leading ~ and any environment variables in a path.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || len(path) > 1 && path[0] == '~' && path[1] == filepath.Separator {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}
