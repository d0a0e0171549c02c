package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const minimalConfig = `
remote: /tmp/cloudbuild-images
branches:
  Sisyphus:
    arches:
      x86_64:
      aarch64:
  p9:
    arches:
      x86_64:
        repository_url: file:///space/mirror/p9/{arch}
    branding: alt-starterkit
    prerequisites:
      - use/p9
images:
  rootfs-minimal:
    target: ve/docker
    kinds:
      - tar.xz
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig), nil)
	require.NoError(t, err)

	require.Len(t, cfg.Branches, 2)
	assert.Equal(t, "Sisyphus", cfg.Branches[0].Name)
	assert.Equal(t, "p9", cfg.Branches[1].Name)
	assert.Equal(t, []string{"x86_64", "aarch64"}, cfg.Branches[0].ArchNames())

	require.Len(t, cfg.Images, 1)
	assert.Equal(t, "rootfs-minimal", cfg.Images[0].Name)
	assert.Equal(t, "ve/docker", cfg.Images[0].Target)

	// defaults
	assert.True(t, *cfg.NoDelete)
	assert.False(t, cfg.TryBuildAll)
	assert.Equal(t, DefaultRebuildAfter().Duration, cfg.RebuildAfter.Duration)
}

func TestLoadMissingRequiredKeys(t *testing.T) {
	for _, tc := range []struct {
		name   string
		config string
		key    string
	}{
		{"remote", "branches: {b: {arches: {x86_64:}}}\nimages: {i: {target: t, kinds: [img]}}", "remote"},
		{"images", "remote: /r\nbranches: {b: {arches: {x86_64:}}}", "images"},
		{"branches", "remote: /r\nimages: {i: {target: t, kinds: [img]}}", "branches"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.config), nil)
			require.Error(t, err)
			var missing *MissingKeyError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tc.key, missing.Key)
		})
	}
}

func TestLoadOverridesSatisfyRequiredKeys(t *testing.T) {
	content := `
branches:
  b:
    arches:
      x86_64:
images:
  i:
    target: t
    kinds: [img]
`
	remote := "/somewhere/else"
	cfg, err := Load(writeConfig(t, content), &Overrides{Remote: &remote})
	require.NoError(t, err)
	assert.Equal(t, remote, cfg.Remote)
}

func TestBranchOrderPreserved(t *testing.T) {
	content := `
remote: /r
branches:
  zeta: {arches: {x86_64:}}
  alpha: {arches: {x86_64:}}
  Middle.Branch: {arches: {x86_64:}}
images:
  i: {target: t, kinds: [img]}
`
	cfg, err := Load(writeConfig(t, content), nil)
	require.NoError(t, err)
	var names []string
	for _, b := range cfg.Branches {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "Middle.Branch"}, names)
}

func TestEscapeBranch(t *testing.T) {
	assert.Equal(t, "p9", EscapeBranch("p9"))
	assert.Equal(t, "c9f2", EscapeBranch("c9f2"))
	assert.Equal(t, "9_0", EscapeBranch("9.0"))
	assert.Equal(t, "a_b_c", EscapeBranch("a.b.c"))
}

func TestValidateEscapeCollision(t *testing.T) {
	content := `
remote: /r
branches:
  "9.0": {arches: {x86_64:}}
  "9_0": {arches: {x86_64:}}
images:
  i: {target: t, kinds: [img]}
`
	_, err := Load(writeConfig(t, content), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escape to the same rule identifier")
}

func TestValidateCaseInsensitiveCollision(t *testing.T) {
	content := `
remote: /r
branches:
  Sisyphus: {arches: {x86_64:}}
  sisyphus: {arches: {x86_64:}}
images:
  i: {target: t, kinds: [img]}
`
	_, err := Load(writeConfig(t, content), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collide case-insensitively")
}

func TestValidateRenameRules(t *testing.T) {
	base := `
remote: /r
branches:
  b: {arches: {x86_64:}}
images:
  i:
    target: t
    kinds: [img]
    rename:
      %s
`
	for rule, wantErr := range map[string]bool{
		"{regex: docker, to: container}": false,
		"{to: fixed.img}":                false,
		"{prog: renamer}":                false,
		"{regex: docker}":                true,
		"{prog: renamer, to: x}":         true,
		"{regex: a, prog: b, to: c}":     true,
	} {
		_, err := Load(writeConfig(t, fmt.Sprintf(base, rule)), nil)
		if wantErr {
			assert.Error(t, err, rule)
		} else {
			assert.NoError(t, err, rule)
		}
	}
}

func TestValidateDuplicateKinds(t *testing.T) {
	content := `
remote: /r
branches:
  b: {arches: {x86_64:}}
images:
  i:
    target: t
    kinds: [qcow2, qcow2]
`
	_, err := Load(writeConfig(t, content), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate kind "qcow2"`)
}

func TestValidateUnknownTestMethod(t *testing.T) {
	content := `
remote: /r
branches:
  b: {arches: {x86_64:}}
images:
  i:
    target: t
    kinds: [img]
    tests:
      - method: chroot
`
	_, err := Load(writeConfig(t, content), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined test method")
}

func TestRebuildAfter(t *testing.T) {
	var r RebuildAfter
	require.NoError(t, yaml.Unmarshal([]byte("{days: 1, hours: 12}"), &r))
	assert.Equal(t, 36.0, r.Hours())

	err := yaml.Unmarshal([]byte("{fortnights: 2}"), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid key "fortnights" passed to rebuild_after`)
}

func TestSigningKeyIntBecomesHex(t *testing.T) {
	var k SigningKey
	require.NoError(t, yaml.Unmarshal([]byte("3735928559"), &k))
	assert.Equal(t, SigningKey("DEADBEEF"), k)

	require.NoError(t, yaml.Unmarshal([]byte("cloud@example.org"), &k))
	assert.Equal(t, SigningKey("cloud@example.org"), k)
}

func TestSizeParsing(t *testing.T) {
	for raw, want := range map[string]string{
		"200k": "204800",
		"1M":   "1048576",
		"0.1G": "107374182",
		"512":  "512",
	} {
		var s Size
		require.NoError(t, yaml.Unmarshal([]byte(raw), &s), raw)
		assert.Equal(t, want, s.String(), raw)
	}

	var s Size
	assert.Error(t, yaml.Unmarshal([]byte("huge"), &s))
}

func TestRepositoryURLResolutionChain(t *testing.T) {
	content := `
remote: /r
repository_url: copy:///space/ALT/{branch}
branches:
  Sisyphus:
    arches:
      x86_64:
      i586:
        repository_url: file:///mirror/{branch}/{arch}
  p9:
    repository_url: http://example.org/{branch}
    arches:
      x86_64:
images:
  i: {target: t, kinds: [img]}
`
	cfg, err := Load(writeConfig(t, content), nil)
	require.NoError(t, err)

	assert.Equal(t, "copy:///space/ALT/Sisyphus", cfg.ResolveRepositoryURL("Sisyphus", "x86_64"))
	assert.Equal(t, "file:///mirror/Sisyphus/i586", cfg.ResolveRepositoryURL("Sisyphus", "i586"))
	assert.Equal(t, "http://example.org/p9", cfg.ResolveRepositoryURL("p9", "x86_64"))
}

func TestBrandingImageOverridesBranch(t *testing.T) {
	content := `
remote: /r
branches:
  b:
    arches: {x86_64:}
    branding: branch-brand
images:
  plain: {target: t, kinds: [img]}
  branded:
    target: t2
    kinds: [img]
    branding: image-brand
`
	cfg, err := Load(writeConfig(t, content), nil)
	require.NoError(t, err)
	assert.Equal(t, "branch-brand", cfg.Branding("plain", "b"))
	assert.Equal(t, "image-brand", cfg.Branding("branded", "b"))
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("CLOUDBUILD_TEST_REMOTE", "/expanded/images")
	content := `
remote: $CLOUDBUILD_TEST_REMOTE
branches:
  b: {arches: {x86_64:}}
images:
  i: {target: t, kinds: [img]}
`
	cfg, err := Load(writeConfig(t, content), nil)
	require.NoError(t, err)
	assert.Equal(t, "/expanded/images", cfg.Remote)
}
