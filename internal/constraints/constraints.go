// Package constraints decides which declarative items (packages, services)
// apply to a given (image, branch) pair of the build matrix.
package constraints

import (
	"fmt"
	"regexp"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
)

// ServiceDefaultState is the state assumed for a service item whose
// constraint record carries no explicit state.
const ServiceDefaultState = "enabled"

// Resolve evaluates each item's constraint record against an (image, branch)
// pair and returns the matching item names in declaration order.
//
// Exclusion lists take precedence over allow lists. An absent allow list
// admits every image/branch; an absent state falls back to defaultState
// (itself defaulting to statePrefix). The state matches when statePrefix
// matches it as an anchored regular-expression prefix; an empty prefix
// matches any state.
//
// Duplicates across calls are not deduplicated; downstream the builder adds
// identifiers idempotently.
func Resolve(items config.ItemList, image, branch, statePrefix, defaultState string) ([]string, error) {
	if defaultState == "" {
		defaultState = statePrefix
	}
	stateRe, err := regexp.Compile("^(?:" + statePrefix + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid state prefix %q: %w", statePrefix, err)
	}

	var out []string
	for _, item := range items {
		c := item.Constraint
		if c == nil {
			c = &config.Constraint{}
		}
		if contains(c.ExcludeImages, image) || contains(c.ExcludeBranches, branch) {
			continue
		}

		// A nil list means unconstrained: read it as the single-element
		// set holding the current image/branch. An empty-but-present
		// list admits nothing.
		images := c.Images
		if images == nil {
			images = []string{image}
		}
		branches := c.Branches
		if branches == nil {
			branches = []string{branch}
		}
		state := defaultState
		if c.State != nil {
			state = *c.State
		}

		if contains(images, image) && contains(branches, branch) && stateRe.MatchString(state) {
			out = append(out, item.Name)
		}
	}
	return out, nil
}

// Packages returns the package list for an (image, branch) pair: the image's
// explicit packages first, then resolver output in declaration order.
func Packages(cfg *config.Config, image, branch string) ([]string, error) {
	resolved, err := Resolve(cfg.Packages, image, branch, "", "")
	if err != nil {
		return nil, err
	}
	return prependImageItems(imageOf(cfg, image).Packages, resolved), nil
}

// EnabledServices returns the services to enable for an (image, branch) pair.
func EnabledServices(cfg *config.Config, image, branch string) ([]string, error) {
	resolved, err := Resolve(cfg.Services, image, branch, "enabled?", ServiceDefaultState)
	if err != nil {
		return nil, err
	}
	return prependImageItems(imageOf(cfg, image).ServicesEnabled, resolved), nil
}

// DisabledServices returns the services to disable for an (image, branch) pair.
func DisabledServices(cfg *config.Config, image, branch string) ([]string, error) {
	resolved, err := Resolve(cfg.Services, image, branch, "disabled?", ServiceDefaultState)
	if err != nil {
		return nil, err
	}
	return prependImageItems(imageOf(cfg, image).ServicesDisabled, resolved), nil
}

func imageOf(cfg *config.Config, name string) *config.Image {
	if im := cfg.Image(name); im != nil {
		return im
	}
	return &config.Image{}
}

func prependImageItems(explicit, resolved []string) []string {
	out := make([]string, 0, len(explicit)+len(resolved))
	out = append(out, explicit...)
	return append(out, resolved...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
