// Package matrix expands the declarative configuration into the concrete,
// ordered set of build units.
package matrix

import (
	"git.home.luguber.info/inful/cloudbuild/internal/config"
)

// PairMeta is the image metadata resolved once per surviving (branch, image)
// pair and shared by every unit of that pair.
type PairMeta struct {
	Target  string
	Size    *config.Size
	Rename  *config.RenameRule
	Tests   []config.TestSpec
	Scripts []string
}

// Unit is one concrete (branch, image, arch, kind) combination. Units are
// derived, never persisted, and generated fresh on every run.
type Unit struct {
	Branch string
	Image  string
	Arch   string
	Kind   string

	Meta *PairMeta
}

// Expand produces all build units in configuration order: branches outermost,
// then images, arches, kinds. A unit survives when its branch is not excluded
// for the image, its arch is not excluded for the image, and the arch belongs
// to the branch's arch set. No two emitted units share the same tuple as long
// as the configuration passed validation (unique branch/image/arch names,
// unique kinds per image).
//
// An empty result is valid and yields a no-op build.
func Expand(cfg *config.Config) []Unit {
	var units []Unit
	for bi := range cfg.Branches {
		branch := &cfg.Branches[bi]
		for ii := range cfg.Images {
			im := &cfg.Images[ii]
			if im.SkipBranch(branch.Name) {
				continue
			}
			meta := &PairMeta{
				Target:  im.Target,
				Size:    im.Size,
				Rename:  im.Rename,
				Tests:   im.Tests,
				Scripts: im.Scripts,
			}
			for _, arch := range branch.Arches {
				if im.SkipArch(arch.Name) {
					continue
				}
				for _, kind := range im.Kinds {
					units = append(units, Unit{
						Branch: branch.Name,
						Image:  im.Name,
						Arch:   arch.Name,
						Kind:   kind,
						Meta:   meta,
					})
				}
			}
		}
	}
	return units
}
