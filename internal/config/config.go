package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the loaded build-matrix configuration document. Branches, images
// and constrained item lists preserve declaration order from the YAML file;
// matrix expansion and recipe generation both depend on that order.
type Config struct {
	Remote             string       `yaml:"remote"`
	Branches           BranchList   `yaml:"branches"`
	Images             ImageList    `yaml:"images"`
	Packages           ItemList     `yaml:"packages"`
	Services           ItemList     `yaml:"services"`
	Scripts            ScriptList   `yaml:"scripts"`
	RepositoryURL      string       `yaml:"repository_url"`
	ImageRepo          string       `yaml:"image_repo"`
	MkimageProfilesGit string       `yaml:"mkimage_profiles_git"`
	LogLevel           string       `yaml:"log_level"`
	TryBuildAll        bool         `yaml:"try_build_all"`
	NoDelete           *bool        `yaml:"no_delete"`
	BadArches          []string     `yaml:"bad_arches"`
	ExternalFiles      string       `yaml:"external_files"`
	RebuildAfter       RebuildAfter `yaml:"rebuild_after"`
	Key                SigningKey   `yaml:"key"`
	AfterSyncCommands  []string     `yaml:"after_sync_commands"`
	CommandTimeout     Timeout      `yaml:"command_timeout"`
}

// Overrides carries per-run substitutes for configuration keys. A nil field
// leaves the file value in place. Required keys may be satisfied by an
// override instead of the file.
type Overrides struct {
	Remote       *string
	RebuildAfter *RebuildAfter
	Key          *SigningKey
}

// MissingKeyError reports a required configuration key absent from both the
// file and the per-run overrides.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("required parameter %q does not set in config", e.Key)
}

// Branch is one distribution branch of the build matrix. Immutable after load.
type Branch struct {
	Name          string
	Arches        []Arch
	Branding      string
	Prerequisites []string
	RepositoryURL string
	ImageRepo     string
}

// Arch is one architecture of a branch, with optional URL overrides.
type Arch struct {
	Name          string
	RepositoryURL string
	ImageRepo     string
}

// ArchNames returns the branch's architecture names in declaration order.
func (b *Branch) ArchNames() []string {
	names := make([]string, len(b.Arches))
	for i, a := range b.Arches {
		names[i] = a.Name
	}
	return names
}

// Image is one buildable image of the matrix. Immutable after load.
type Image struct {
	Name             string
	Target           string      `yaml:"target"`
	Kinds            []string    `yaml:"kinds"`
	Size             *Size       `yaml:"size"`
	Branding         *string     `yaml:"branding"`
	Packages         []string    `yaml:"packages"`
	ServicesEnabled  []string    `yaml:"services_enabled"`
	ServicesDisabled []string    `yaml:"services_disabled"`
	Rename           *RenameRule `yaml:"rename"`
	ExcludeArches    []string    `yaml:"exclude_arches"`
	ExcludeBranches  []string    `yaml:"exclude_branches"`
	Tests            []TestSpec  `yaml:"tests"`
	Prerequisites    []string    `yaml:"prerequisites"`
	Scripts          []string    `yaml:"scripts"`
	NoScripts        []string    `yaml:"no_scripts"`
}

// SkipArch reports whether the image excludes the given architecture.
func (im *Image) SkipArch(arch string) bool { return contains(im.ExcludeArches, arch) }

// SkipBranch reports whether the image excludes the given branch.
func (im *Image) SkipBranch(branch string) bool { return contains(im.ExcludeBranches, branch) }

// RenameRule selects exactly one renaming strategy for published artifacts.
type RenameRule struct {
	Regex string `yaml:"regex"`
	To    string `yaml:"to"`
	Prog  string `yaml:"prog"`
}

// TestSpec names a smoke-test method to run against a built artifact.
type TestSpec struct {
	Method string `yaml:"method"`
}

// Load reads the configuration document. Environment variables referenced in
// the document are expanded after an optional .env file has been loaded.
func Load(path string, o *Overrides) (*Config, error) {
	_ = godotenv.Load() // absence of .env is not an error

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %q: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config %q: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyOverrides(o)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RepositoryURL == "" {
		c.RepositoryURL = "copy:///space/ALT/{branch}"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.NoDelete == nil {
		v := true
		c.NoDelete = &v
	}
	if c.RebuildAfter.Duration == 0 && !c.RebuildAfter.set {
		c.RebuildAfter = DefaultRebuildAfter()
	}
}

func (c *Config) applyOverrides(o *Overrides) {
	if o == nil {
		return
	}
	if o.Remote != nil {
		c.Remote = *o.Remote
	}
	if o.RebuildAfter != nil {
		c.RebuildAfter = *o.RebuildAfter
	}
	if o.Key != nil {
		c.Key = *o.Key
	}
}

// Branch returns the named branch, or nil when not configured.
func (c *Config) Branch(name string) *Branch {
	for i := range c.Branches {
		if c.Branches[i].Name == name {
			return &c.Branches[i]
		}
	}
	return nil
}

// Image returns the named image, or nil when not configured.
func (c *Config) Image(name string) *Image {
	for i := range c.Images {
		if c.Images[i].Name == name {
			return &c.Images[i]
		}
	}
	return nil
}

func (c *Config) arch(branch, arch string) *Arch {
	b := c.Branch(branch)
	if b == nil {
		return nil
	}
	for i := range b.Arches {
		if b.Arches[i].Name == arch {
			return &b.Arches[i]
		}
	}
	return nil
}

// AllArches returns the union of every branch's architectures, each once, in
// first-appearance order.
func (c *Config) AllArches() []string {
	var all []string
	seen := map[string]bool{}
	for i := range c.Branches {
		for _, a := range c.Branches[i].Arches {
			if !seen[a.Name] {
				seen[a.Name] = true
				all = append(all, a.Name)
			}
		}
	}
	return all
}

// ResolveRepositoryURL resolves the package repository URL for a (branch,
// arch) pair: per-arch override, then per-branch, then the global template.
func (c *Config) ResolveRepositoryURL(branch, arch string) string {
	url := ""
	if a := c.arch(branch, arch); a != nil {
		url = a.RepositoryURL
	}
	if url == "" {
		if b := c.Branch(branch); b != nil {
			url = b.RepositoryURL
		}
	}
	if url == "" {
		url = c.RepositoryURL
	}
	return ExpandPlaceholders(url, branch, arch)
}

// ResolveImageRepo resolves the image repository override for a (branch, arch)
// pair through the same chain as ResolveRepositoryURL. Empty means no override
// is passed to the builder.
func (c *Config) ResolveImageRepo(branch, arch string) string {
	url := ""
	if a := c.arch(branch, arch); a != nil {
		url = a.ImageRepo
	}
	if url == "" {
		if b := c.Branch(branch); b != nil {
			url = b.ImageRepo
		}
	}
	if url == "" {
		url = c.ImageRepo
	}
	if url == "" {
		return ""
	}
	return ExpandPlaceholders(url, branch, arch)
}

// Branding resolves the branding value for an (image, branch) pair. An
// image-level value, even an empty one, overrides the branch value.
func (c *Config) Branding(image, branch string) string {
	if im := c.Image(image); im != nil && im.Branding != nil {
		return *im.Branding
	}
	if b := c.Branch(branch); b != nil {
		return b.Branding
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
