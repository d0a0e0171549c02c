// Package imagetest runs configured smoke tests against built image
// artifacts. A test imports the artifact into a container runtime (or hands
// it to an external program) and exercises the package manager inside it.
package imagetest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
)

// Kind enumerates the supported test methods.
type Kind int

const (
	KindDocker Kind = iota
	KindLXD
	KindProg
)

// Method is a parsed test method descriptor.
type Method struct {
	Kind Kind
	Prog string // program name for KindProg
}

var progRe = regexp.MustCompile(`^prog\(([-.\w]+)\)$`)

// ParseMethod parses a test method name from configuration. Unknown names are
// a configuration error.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "docker":
		return Method{Kind: KindDocker}, nil
	case "lxd":
		return Method{Kind: KindLXD}, nil
	}
	if m := progRe.FindStringSubmatch(s); m != nil {
		return Method{Kind: KindProg, Prog: m[1]}, nil
	}
	return Method{}, fmt.Errorf("undefined test method %q", s)
}

// FailureError reports an artifact failing its smoke test. It always aborts
// the whole run: a bad artifact must never be published.
type FailureError struct {
	Image  string
	Method string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("test %s for %s failed", e.Method, e.Image)
}

// Smoke tests execute the image's userland, so they only run on
// architectures the build host can execute directly.
var testableArches = map[string]bool{
	"x86_64": true,
	"i586":   true,
}

// Run executes one test method against an artifact. The artifact is copied
// into a scratch directory first so a misbehaving test cannot damage the
// publish tree. A nil error means the test passed or was skipped for a
// non-testable architecture.
func Run(ctx context.Context, method, imagePath, branch, arch string) error {
	m, err := ParseMethod(method)
	if err != nil {
		return err
	}
	if !testableArches[arch] {
		slog.Debug("Skipping test on non-testable architecture",
			logfields.Arch(arch), logfields.Path(imagePath))
		return nil
	}

	tmpDir, err := os.MkdirTemp("", "cloudbuild-test-")
	if err != nil {
		return fmt.Errorf("failed to create test scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	local := filepath.Join(tmpDir, filepath.Base(imagePath))
	if err := copyFile(imagePath, local); err != nil {
		return fmt.Errorf("failed to copy artifact for testing: %w", err)
	}

	commands, err := commandsFor(m, tmpDir, local)
	if err != nil {
		return err
	}
	// Every command runs even after a failure: the tail of the lxd sequence
	// deletes the imported image and container, and stopping early would
	// leak them.
	failed := false
	for _, command := range commands {
		slog.Debug("Running test command", slog.String("command", command))
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = tmpDir
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			failed = true
		}
	}
	if failed {
		return &FailureError{Image: imagePath, Method: method}
	}
	return nil
}

func commandsFor(m Method, tmpDir, image string) ([]string, error) {
	switch m.Kind {
	case KindDocker:
		return dockerCommands(tmpDir, filepath.Base(image))
	case KindLXD:
		return lxdCommands(image), nil
	case KindProg:
		return []string{fmt.Sprintf("%s %s", m.Prog, image)}, nil
	}
	return nil, fmt.Errorf("unhandled test method kind %d", m.Kind)
}

// dockerCommands imports the rootfs tarball into a scratch image and checks
// that the package manager works inside it.
func dockerCommands(tmpDir, imageName string) ([]string, error) {
	dockerfile := fmt.Sprintf(`FROM scratch
ADD %s /

RUN true > /etc/security/limits.d/50-defaults.conf

CMD ["/bin/bash"]
`, imageName)
	if err := os.WriteFile(filepath.Join(tmpDir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	tag := fmt.Sprintf("cloudbuild_test_%x", sha256.Sum256([]byte(imageName)))[:32]
	return []string{
		fmt.Sprintf("docker build --rm --tag=%s .", tag),
		fmt.Sprintf("docker run --rm %s /bin/sh -c 'apt-get update && apt-get install -y vim-console'", tag),
		fmt.Sprintf("docker image rm %s", tag),
	}, nil
}

// lxdCommands imports the image into lxd, boots it and checks the package
// manager, then removes every created object.
func lxdCommands(image string) []string {
	alias := fmt.Sprintf("cloudbuild-test-%x", sha256.Sum256([]byte(image)))[:30]
	return []string{
		fmt.Sprintf("lxc image import %s --alias %s", image, alias),
		fmt.Sprintf("lxc launch %s %s", alias, alias),
		fmt.Sprintf("lxc exec %s -- /bin/sh -c 'apt-get update'", alias),
		fmt.Sprintf("lxc delete --force %s", alias),
		fmt.Sprintf("lxc image delete %s", alias),
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
