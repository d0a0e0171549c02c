package config

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/cloudbuild/internal/imagetest"
)

// EscapeBranch turns a branch name into a valid build-rule identifier. The
// fragment grammar reserves ".", so it is replaced with "_".
func EscapeBranch(branch string) string {
	return strings.ReplaceAll(branch, ".", "_")
}

// Validate checks the loaded document for the invariants the rest of the
// pipeline relies on. It is called by Load; callers constructing a Config by
// hand (tests) may call it directly.
func (c *Config) Validate() error {
	if c.Remote == "" {
		return &MissingKeyError{Key: "remote"}
	}
	if len(c.Images) == 0 {
		return &MissingKeyError{Key: "images"}
	}
	if len(c.Branches) == 0 {
		return &MissingKeyError{Key: "branches"}
	}

	// Branch names must stay distinct after rule-identifier escaping and
	// after lowercasing: escaped names key the generated build rules,
	// lowercased names are embedded in published file names.
	escaped := map[string]string{}
	lowered := map[string]string{}
	for i := range c.Branches {
		name := c.Branches[i].Name
		e := EscapeBranch(name)
		if prev, ok := escaped[e]; ok {
			return fmt.Errorf("branches %q and %q escape to the same rule identifier %q", prev, name, e)
		}
		escaped[e] = name
		lo := strings.ToLower(name)
		if prev, ok := lowered[lo]; ok {
			return fmt.Errorf("branches %q and %q collide case-insensitively", prev, name)
		}
		lowered[lo] = name
	}

	for i := range c.Branches {
		seen := map[string]bool{}
		for _, a := range c.Branches[i].Arches {
			if seen[a.Name] {
				return fmt.Errorf("branch %q: duplicate arch %q", c.Branches[i].Name, a.Name)
			}
			seen[a.Name] = true
		}
	}

	imageNames := map[string]bool{}
	for i := range c.Images {
		im := &c.Images[i]
		if imageNames[im.Name] {
			return fmt.Errorf("duplicate image %q", im.Name)
		}
		imageNames[im.Name] = true
		if im.Target == "" {
			return fmt.Errorf("image %q: target is required", im.Name)
		}
		if len(im.Kinds) == 0 {
			return fmt.Errorf("image %q: at least one kind is required", im.Name)
		}
		seenKinds := map[string]bool{}
		for _, kind := range im.Kinds {
			if seenKinds[kind] {
				return fmt.Errorf("image %q: duplicate kind %q", im.Name, kind)
			}
			seenKinds[kind] = true
		}
		if im.Rename != nil {
			if err := validateRename(im.Rename); err != nil {
				return fmt.Errorf("image %q: %w", im.Name, err)
			}
		}
		for _, ts := range im.Tests {
			if _, err := imagetest.ParseMethod(ts.Method); err != nil {
				return fmt.Errorf("image %q: %w", im.Name, err)
			}
		}
	}
	return nil
}

func validateRename(r *RenameRule) error {
	switch {
	case r.Regex != "":
		if r.Prog != "" {
			return fmt.Errorf("rename: regex and prog are mutually exclusive")
		}
		if r.To == "" {
			return fmt.Errorf("rename: regex requires to")
		}
	case r.Prog != "":
		if r.To != "" {
			return fmt.Errorf("rename: prog and to are mutually exclusive")
		}
	case r.To != "":
		// static rename
	default:
		return fmt.Errorf("rename: one of regex, prog or to is required")
	}
	return nil
}
