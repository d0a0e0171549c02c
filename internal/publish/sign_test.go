package publish

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAllRequiresKey(t *testing.T) {
	s := &Signer{}
	err := s.SignAll(context.Background(), []string{t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass key to config file for sign")
}

func TestManifestFilesExcludesManifests(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.img", "a.img", "SHA256SUM", "SHA256SUMS", "SHA256SUM.asc", "SHA256SUMS.gpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	files, err := manifestFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.img", "b.img"}, files)
}

func TestBuildManifestFormat(t *testing.T) {
	dir := t.TempDir()
	content := []byte("image-bits")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alt-p9-cloud-x86_64.qcow2"), content, 0o644))

	manifest, err := buildManifest(dir, []string{"alt-p9-cloud-x86_64.qcow2"})
	require.NoError(t, err)
	want := fmt.Sprintf("%x  alt-p9-cloud-x86_64.qcow2\n", sha256.Sum256(content))
	assert.Equal(t, want, manifest)
}
