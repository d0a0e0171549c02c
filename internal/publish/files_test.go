package publish

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
)

func TestInstall(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "out.img")
	dst := filepath.Join(dir, "published.img")
	require.NoError(t, os.WriteFile(src, []byte("bits"), 0o644))

	require.NoError(t, Install(src, dst, false))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "bits", string(data))

	src2 := filepath.Join(dir, "out2.img")
	require.NoError(t, os.WriteFile(src2, []byte("newer"), 0o644))
	require.NoError(t, Install(src2, dst, true))
	data, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "newer", string(data))
}

func TestInstallRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "out.img")
	dst := filepath.Join(dir, "published.img")
	require.NoError(t, os.WriteFile(src, []byte("bits"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("already here"), 0o644))

	err := Install(src, dst, false)
	require.Error(t, err)

	// the collision did not clobber the existing file
	data, err2 := os.ReadFile(dst)
	require.NoError(t, err2)
	assert.Equal(t, "already here", string(data))
}

func TestCopyExternalFiles(t *testing.T) {
	cfg := &config.Config{
		Branches: config.BranchList{
			{Name: "p9", Arches: []config.Arch{{Name: "x86_64"}}},
		},
		Images: config.ImageList{{Name: "i", Target: "t", Kinds: []string{"img"}}},
	}
	root := t.TempDir()
	topo := NewTopology(root, "/pub/{branch}/{arch}")
	require.NoError(t, topo.EnsureDirs(cfg))

	external := t.TempDir()
	srcDir := filepath.Join(external, "p9", "x86_64")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "extra.iso"), []byte("iso"), 0o644))

	require.NoError(t, CopyExternalFiles(cfg, topo, external))
	assert.FileExists(t, filepath.Join(topo.Dir("p9", "x86_64"), "extra.iso"))
}

func TestCopyExternalFilesUnknownBranch(t *testing.T) {
	cfg := &config.Config{
		Branches: config.BranchList{{Name: "p9", Arches: []config.Arch{{Name: "x86_64"}}}},
		Images:   config.ImageList{{Name: "i", Target: "t", Kinds: []string{"img"}}},
	}
	topo := NewTopology(t.TempDir(), "/pub")

	external := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(external, "p10", "x86_64"), 0o755))

	err := CopyExternalFiles(cfg, topo, external)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown branch "p10"`)
}

func TestCopyExternalFilesUnknownArch(t *testing.T) {
	cfg := &config.Config{
		Branches: config.BranchList{{Name: "p9", Arches: []config.Arch{{Name: "x86_64"}}}},
		Images:   config.ImageList{{Name: "i", Target: "t", Kinds: []string{"img"}}},
	}
	topo := NewTopology(t.TempDir(), "/pub")

	external := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(external, "p9", "riscv64"), 0o755))

	err := CopyExternalFiles(cfg, topo, external)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown arch "riscv64"`)
}
