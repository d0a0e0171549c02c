package publish

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
)

// Install places an artifact into the publish tree under its published name.
// It hard-links when possible and falls back to a copy across devices. With
// rewrite set, an existing destination is replaced.
func Install(src, dst string, rewrite bool) error {
	if rewrite {
		if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to replace %q: %w", dst, err)
		}
	}
	err := os.Link(src, dst)
	if err == nil {
		return nil
	}
	// Only a cross-device link falls back to a copy; anything else (an
	// existing destination in particular) is a real error.
	if !errors.Is(err, unix.EXDEV) {
		return fmt.Errorf("failed to install %q: %w", dst, err)
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to install %q: %w", dst, err)
	}
	return nil
}

// CopyExternalFiles mirrors a <dir>/<branch>/<arch>/* tree of externally
// produced files into the publish tree. Branches or arches unknown to the
// configuration are a configuration error; existing destinations are
// overwritten.
func CopyExternalFiles(cfg *config.Config, topo *Topology, externalDir string) error {
	branches, err := os.ReadDir(externalDir)
	if err != nil {
		return fmt.Errorf("failed to read external files directory: %w", err)
	}
	for _, branchEntry := range branches {
		branch := branchEntry.Name()
		b := cfg.Branch(branch)
		if b == nil {
			return fmt.Errorf("unknown branch %q in external_files", branch)
		}
		arches, err := os.ReadDir(filepath.Join(externalDir, branch))
		if err != nil {
			return fmt.Errorf("failed to read external files for branch %q: %w", branch, err)
		}
		for _, archEntry := range arches {
			arch := archEntry.Name()
			if !containsArch(b, arch) {
				return fmt.Errorf("unknown arch %q in external_files", arch)
			}
			srcDir := filepath.Join(externalDir, branch, arch)
			files, err := os.ReadDir(srcDir)
			if err != nil {
				return fmt.Errorf("failed to read external files for %s/%s: %w", branch, arch, err)
			}
			for _, file := range files {
				slog.Info("Copying external file",
					logfields.Branch(branch), logfields.Arch(arch), logfields.Path(file.Name()))
				src := filepath.Join(srcDir, file.Name())
				dst := filepath.Join(topo.Dir(branch, arch), file.Name())
				if err := Install(src, dst, true); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func containsArch(b *config.Branch, arch string) bool {
	for _, a := range b.Arches {
		if a.Name == arch {
			return true
		}
	}
	return false
}
