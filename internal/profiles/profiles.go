// Package profiles manages the mkimage-profiles checkout the external
// builder runs in: keeping the git clone fresh and installing per-image hook
// scripts into the profile tree.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
)

const defaultGitURL = "git://git.altlinux.org/people/antohami/packages/mkimage-profiles.git"

// Checkout is a managed mkimage-profiles working copy.
type Checkout struct {
	dir     string
	url     string
	created []string // hook scripts installed by the current run
}

// NewCheckout returns a checkout manager for dir. An empty url selects the
// upstream default.
func NewCheckout(dir, url string) *Checkout {
	if url == "" {
		url = defaultGitURL
	}
	return &Checkout{dir: dir, url: url}
}

// Dir returns the checkout directory.
func (c *Checkout) Dir() string { return c.dir }

// Ensure clones the profiles repository if absent, otherwise fast-forwards
// the existing checkout.
func (c *Checkout) Ensure(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(c.dir, ".git")); err == nil {
		slog.Info("Updating mkimage-profiles", logfields.Path(c.dir))
		repo, err := git.PlainOpen(c.dir)
		if err != nil {
			return fmt.Errorf("failed to open profiles checkout: %w", err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to open profiles worktree: %w", err)
		}
		err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to update profiles checkout: %w", err)
		}
		return nil
	}

	slog.Info("Downloading mkimage-profiles", slog.String("url", c.url))
	_, err := git.PlainCloneContext(ctx, c.dir, false, &git.CloneOptions{
		URL:      c.url,
		Progress: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("failed to clone profiles repository %q: %w", c.url, err)
	}
	return nil
}

// InstallScripts writes the image's hook scripts into the profile tree's
// image-scripts.d directory for the image's target type, removing the scripts
// installed for the previous image first. Scripts are shared build-time
// state, which is why the whole run holds the workspace lock.
func (c *Checkout) InstallScripts(im *config.Image, scripts config.ScriptList) error {
	c.RemoveScripts()

	dir := filepath.Join(c.dir, "features.in", "build-"+targetType(im.Target), "image-scripts.d")
	for _, s := range selectScripts(im, scripts) {
		path := filepath.Join(dir, s.filename)
		if err := os.WriteFile(path, []byte(s.contents), 0o755); err != nil {
			return fmt.Errorf("failed to install script %q: %w", s.filename, err)
		}
		c.created = append(c.created, path)
	}
	return nil
}

// RemoveScripts deletes the hook scripts installed by this run so far.
func (c *Checkout) RemoveScripts() {
	for _, path := range c.created {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove installed script", logfields.Path(path), logfields.Error(err))
		}
	}
	c.created = nil
}

type installedScript struct {
	filename string
	contents string
}

// selectScripts resolves which configured scripts apply to an image: global
// scripts not opted out via no_scripts, plus scripts the image names
// explicitly. An optional number becomes a two-digit ordering prefix.
func selectScripts(im *config.Image, scripts config.ScriptList) []installedScript {
	var out []installedScript
	for _, s := range scripts {
		global := s.Global && !contains(im.NoScripts, s.Name)
		if !global && !contains(im.Scripts, s.Name) {
			continue
		}
		name := s.Name
		if s.Number != nil {
			name = fmt.Sprintf("%02d-%s", *s.Number, name)
		}
		out = append(out, installedScript{filename: name, contents: s.Contents})
	}
	return out
}

// targetType derives the profile feature directory from the build target: the
// target's directory prefix, or "distro" for bare targets.
func targetType(target string) string {
	if i := strings.IndexByte(target, '/'); i > 0 {
		return target[:i]
	}
	return "distro"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
