package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
)

const taskRepoBase = "http://git.altlinux.org"

// AptConfPath returns the apt.conf file used by the builder for a
// (branch, arch) pair.
func AptConfPath(aptDir, branch, arch string) string {
	return filepath.Join(aptDir, fmt.Sprintf("apt.conf.%s.%s", branch, arch))
}

// GenerateAptFiles writes the per-(branch,arch) apt.conf and sources.list
// files the builder consumes. Architectures listed in bad_arches get no
// noarch repository line; tasks adds extra task repositories keyed by
// lowercased branch name.
func GenerateAptFiles(cfg *config.Config, aptDir string, tasks map[string][]string) error {
	if err := os.MkdirAll(aptDir, 0o750); err != nil {
		return fmt.Errorf("failed to create apt directory: %w", err)
	}
	for bi := range cfg.Branches {
		branch := cfg.Branches[bi].Name
		for _, arch := range cfg.Branches[bi].ArchNames() {
			sourcesPath := filepath.Join(aptDir, fmt.Sprintf("sources.list.%s.%s", branch, arch))

			aptConf := fmt.Sprintf(`Dir::Etc::main "/dev/null";
Dir::Etc::parts "/var/empty";
Dir::Etc::SourceList "%s";
Dir::Etc::SourceParts "/var/empty";
Dir::Etc::preferences "/dev/null";
Dir::Etc::preferencesparts "/var/empty";
`, sourcesPath)
			if err := os.WriteFile(AptConfPath(aptDir, branch, arch), []byte(aptConf), 0o644); err != nil {
				return fmt.Errorf("failed to write apt.conf for %s/%s: %w", branch, arch, err)
			}

			repo := cfg.ResolveRepositoryURL(branch, arch)
			var sources strings.Builder
			fmt.Fprintf(&sources, "rpm %s %s classic\n", repo, arch)
			if !containsString(cfg.BadArches, arch) {
				fmt.Fprintf(&sources, "rpm %s noarch classic\n", repo)
			}
			for _, task := range tasks[strings.ToLower(branch)] {
				fmt.Fprintf(&sources, "rpm %s repo/%s/%s task\n", taskRepoBase, task, arch)
			}
			if err := os.WriteFile(sourcesPath, []byte(sources.String()), 0o644); err != nil {
				return fmt.Errorf("failed to write sources.list for %s/%s: %w", branch, arch, err)
			}
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
