// Package recipe emits the generated builder configuration: the
// dependency-ordered build fragment consumed by mkimage-profiles and the
// per-(branch,arch) apt files the builder points at.
package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
	"git.home.luguber.info/inful/cloudbuild/internal/constraints"
)

// FragmentName is the file written into the profile tree's conf.d directory.
const FragmentName = "cloudbuild.mk"

// Generate writes the build fragment covering the whole matrix: one
// dependency rule per (image, branch) pair, each carrying the ordered
// configuration calls (branding, packages, service states). The fragment is
// regenerated wholesale on every run and replaced atomically so the external
// builder never observes a half-written file.
func Generate(cfg *config.Config, profilesDir string) error {
	var buf bytes.Buffer
	for i := range cfg.Images {
		im := &cfg.Images[i]
		for b := range cfg.Branches {
			rule, err := buildRule(cfg, im, cfg.Branches[b].Name)
			if err != nil {
				return err
			}
			buf.WriteString(rule)
			buf.WriteByte('\n')
		}
	}
	return writeAtomic(filepath.Join(profilesDir, "conf.d", FragmentName), buf.Bytes())
}

// Remove deletes the generated fragment, restoring the pristine checkout.
func Remove(profilesDir string) error {
	err := os.Remove(filepath.Join(profilesDir, "conf.d", FragmentName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// buildRule renders one dependency rule:
//
//	target_branch: target <branch prereqs> <image prereqs>; @:
//		@$(call set,BRANDING,...)
//		@$(call add,BASE_PACKAGES,...)
//		...
func buildRule(cfg *config.Config, im *config.Image, branch string) (string, error) {
	prerequisites := []string{im.Target}
	if b := cfg.Branch(branch); b != nil {
		prerequisites = append(prerequisites, b.Prerequisites...)
	}
	prerequisites = append(prerequisites, im.Prerequisites...)

	var recipes strings.Builder
	if branding := cfg.Branding(im.Name, branch); branding != "" {
		fmt.Fprintf(&recipes, "\n\t@$(call set,BRANDING,%s)", branding)
	}

	packages, err := constraints.Packages(cfg, im.Name, branch)
	if err != nil {
		return "", err
	}
	for _, pkg := range packages {
		fmt.Fprintf(&recipes, "\n\t@$(call add,BASE_PACKAGES,%s)", pkg)
	}

	enabled, err := constraints.EnabledServices(cfg, im.Name, branch)
	if err != nil {
		return "", err
	}
	for _, service := range enabled {
		fmt.Fprintf(&recipes, "\n\t@$(call add,DEFAULT_SERVICES_ENABLE,%s)", service)
	}

	disabled, err := constraints.DisabledServices(cfg, im.Name, branch)
	if err != nil {
		return "", err
	}
	for _, service := range disabled {
		fmt.Fprintf(&recipes, "\n\t@$(call add,DEFAULT_SERVICES_DISABLE,%s)", service)
	}

	rule := fmt.Sprintf("%s_%s: %s; @:%s",
		im.Target,
		config.EscapeBranch(branch),
		strings.Join(prerequisites, " "),
		recipes.String(),
	)
	return rule, nil
}

// writeAtomic writes data via a temporary file in the destination directory
// followed by a rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create fragment temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write fragment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close fragment temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace fragment %q: %w", path, err)
	}
	return nil
}
