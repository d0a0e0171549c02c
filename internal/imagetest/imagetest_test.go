package imagetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("docker")
	require.NoError(t, err)
	assert.Equal(t, KindDocker, m.Kind)

	m, err = ParseMethod("lxd")
	require.NoError(t, err)
	assert.Equal(t, KindLXD, m.Kind)

	m, err = ParseMethod("prog(check-image.sh)")
	require.NoError(t, err)
	assert.Equal(t, KindProg, m.Kind)
	assert.Equal(t, "check-image.sh", m.Prog)

	_, err = ParseMethod("chroot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undefined test method "chroot"`)

	_, err = ParseMethod("prog()")
	assert.Error(t, err)
}

func artifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alt-p9-cloud-x86_64.img")
	require.NoError(t, os.WriteFile(path, []byte("image"), 0o644))
	return path
}

func TestRunProgPasses(t *testing.T) {
	err := Run(context.Background(), "prog(true)", artifact(t), "p9", "x86_64")
	assert.NoError(t, err)
}

func TestRunProgFailureAborts(t *testing.T) {
	err := Run(context.Background(), "prog(false)", artifact(t), "p9", "x86_64")
	require.Error(t, err)
	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "prog(false)", failure.Method)
}

func TestRunSkipsNonTestableArch(t *testing.T) {
	// would fail if it actually ran
	err := Run(context.Background(), "prog(false)", artifact(t), "p9", "aarch64")
	assert.NoError(t, err)
}

func TestRunLXDFailureStillCleansUp(t *testing.T) {
	binDir := t.TempDir()
	log := filepath.Join(binDir, "calls")
	script := "#!/bin/sh\necho \"$1 $2\" >> " + log + "\n[ \"$1\" = exec ] && exit 1\nexit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "lxc"), []byte(script), 0o755))
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	err := Run(context.Background(), "lxd", artifact(t), "p9", "x86_64")
	require.Error(t, err)
	var failure *FailureError
	require.ErrorAs(t, err, &failure)

	calls, err := os.ReadFile(log)
	require.NoError(t, err)
	// the delete commands after the failing exec still ran
	assert.Contains(t, string(calls), "delete --force")
	assert.Contains(t, string(calls), "image delete")
}

func TestDockerCommands(t *testing.T) {
	dir := t.TempDir()
	commands, err := dockerCommands(dir, "rootfs.tar.xz")
	require.NoError(t, err)
	require.Len(t, commands, 3)
	assert.Contains(t, commands[0], "docker build")
	assert.Contains(t, commands[1], "apt-get update")
	assert.Contains(t, commands[2], "docker image rm")

	dockerfile, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, string(dockerfile), "FROM scratch")
	assert.Contains(t, string(dockerfile), "ADD rootfs.tar.xz /")
}

func TestLXDCommands(t *testing.T) {
	commands := lxdCommands("/tmp/image.img")
	require.Len(t, commands, 5)
	assert.Contains(t, commands[0], "lxc image import /tmp/image.img")
	assert.Contains(t, commands[3], "lxc delete --force")
	assert.Contains(t, commands[4], "lxc image delete")
}
