// Package publish resolves the publishing topology and drives the signing
// and sync stages over the resolved directories.
package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
)

// Pair is one local publish directory and the remote address it syncs to.
type Pair struct {
	LocalDir string
	Remote   string
}

// Topology derives, from the templated remote address, how the publish tree
// is partitioned: not at all, by branch, by arch, or by branch then arch.
// Local artifact placement and the sync stage must share one partitioning or
// published checksums will not match the files beside them.
type Topology struct {
	root     string
	remote   string
	byBranch bool
	byArch   bool
}

// NewTopology inspects the remote address template for {branch} and {arch}
// placeholders.
func NewTopology(imagesRoot, remoteTemplate string) *Topology {
	return &Topology{
		root:     imagesRoot,
		remote:   remoteTemplate,
		byBranch: strings.Contains(remoteTemplate, "{branch}"),
		byArch:   strings.Contains(remoteTemplate, "{arch}"),
	}
}

// ByBranch reports whether the publish tree is partitioned by branch.
func (t *Topology) ByBranch() bool { return t.byBranch }

// ByArch reports whether the publish tree is partitioned by arch.
func (t *Topology) ByArch() bool { return t.byArch }

// Dir returns the local publish directory for a (branch, arch) pair,
// following the partitioning the remote template dictates.
func (t *Topology) Dir(branch, arch string) string {
	dir := t.root
	if t.byBranch {
		dir = filepath.Join(dir, branch)
	}
	if t.byArch {
		dir = filepath.Join(dir, arch)
	}
	return dir
}

// Pairs returns every (local dir, resolved remote) pair the configuration
// requires, covering each branch/arch combination the partitioning exposes.
func (t *Topology) Pairs(cfg *config.Config) []Pair {
	var pairs []Pair
	switch {
	case t.byBranch && t.byArch:
		for bi := range cfg.Branches {
			branch := cfg.Branches[bi].Name
			for _, arch := range cfg.Branches[bi].ArchNames() {
				pairs = append(pairs, Pair{
					LocalDir: t.Dir(branch, arch),
					Remote:   config.ExpandPlaceholders(t.remote, branch, arch),
				})
			}
		}
	case t.byBranch:
		for bi := range cfg.Branches {
			branch := cfg.Branches[bi].Name
			pairs = append(pairs, Pair{
				LocalDir: t.Dir(branch, ""),
				Remote:   config.ExpandPlaceholders(t.remote, branch, ""),
			})
		}
	case t.byArch:
		for _, arch := range cfg.AllArches() {
			pairs = append(pairs, Pair{
				LocalDir: t.Dir("", arch),
				Remote:   config.ExpandPlaceholders(t.remote, "", arch),
			})
		}
	default:
		pairs = append(pairs, Pair{LocalDir: t.root, Remote: t.remote})
	}
	return pairs
}

// Dirs returns the local side of Pairs.
func (t *Topology) Dirs(cfg *config.Config) []string {
	pairs := t.Pairs(cfg)
	dirs := make([]string, len(pairs))
	for i, p := range pairs {
		dirs[i] = p.LocalDir
	}
	return dirs
}

// EnsureDirs creates every local publish directory.
func (t *Topology) EnsureDirs(cfg *config.Config) error {
	for _, dir := range t.Dirs(cfg) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create publish directory %q: %w", dir, err)
		}
	}
	return nil
}

// ClearDirs empties every local publish directory before a fresh build run.
func (t *Topology) ClearDirs(cfg *config.Config) error {
	for _, dir := range t.Dirs(cfg) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read publish directory %q: %w", dir, err)
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("failed to clear publish directory %q: %w", dir, err)
			}
		}
	}
	return nil
}
