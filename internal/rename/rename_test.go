package rename

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
)

func TestApplyNilRuleKeepsName(t *testing.T) {
	got, err := Apply(context.Background(), nil, "alt-p9-cloud-x86_64.qcow2")
	require.NoError(t, err)
	assert.Equal(t, "alt-p9-cloud-x86_64.qcow2", got)
}

func TestApplyRegex(t *testing.T) {
	rule := &config.RenameRule{Regex: "docker", To: "container"}
	got, err := Apply(context.Background(), rule, "alt-p9-docker-x86_64.tar.xz")
	require.NoError(t, err)
	assert.Equal(t, "alt-p9-container-x86_64.tar.xz", got)
}

func TestApplyRegexInvalid(t *testing.T) {
	rule := &config.RenameRule{Regex: "([", To: "x"}
	_, err := Apply(context.Background(), rule, "name")
	assert.Error(t, err)
}

func TestApplyStatic(t *testing.T) {
	rule := &config.RenameRule{To: "latest.img"}
	got, err := Apply(context.Background(), rule, "alt-sisyphus-cloud-x86_64.img")
	require.NoError(t, err)
	assert.Equal(t, "latest.img", got)
}

func TestApplyProg(t *testing.T) {
	dir := t.TempDir()
	prog := filepath.Join(dir, "renamer")
	script := "#!/bin/sh\necho \"renamed-$1\"\n"
	require.NoError(t, os.WriteFile(prog, []byte(script), 0o755))

	rule := &config.RenameRule{Prog: prog}
	got, err := Apply(context.Background(), rule, "original.img")
	require.NoError(t, err)
	assert.Equal(t, "renamed-original.img", got)
}

func TestApplyProgEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	prog := filepath.Join(dir, "renamer")
	require.NoError(t, os.WriteFile(prog, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	rule := &config.RenameRule{Prog: prog}
	_, err := Apply(context.Background(), rule, "original.img")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty name")
}
