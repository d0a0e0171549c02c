// Package builder invokes the external image builder (make inside the
// mkimage-profiles checkout) for single build units.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
	"git.home.luguber.info/inful/cloudbuild/internal/recipe"
)

// Request is the fixed argument contract for one build-unit invocation.
// FullTarget is the branch-escaped rule plus kind (ve/docker_sisyphus.tar.xz);
// OutName is the file the builder must create under OutDir on success.
type Request struct {
	FullTarget string
	Branch     string
	Arch       string
	OutName    string
	ImageRepo  string       // optional repository override
	Size       *config.Size // optional VM size
}

// Runner executes build requests against a profiles checkout.
type Runner struct {
	ProfilesDir string
	AptDir      string
	OutDir      string
	Timeout     time.Duration // per-invocation bound, 0 = none
}

// Build runs one request. A non-zero exit is returned as an error, but the
// authoritative success signal is the presence of the named output file,
// which the caller checks.
func (r *Runner) Build(ctx context.Context, req Request) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := []string{
		fmt.Sprintf("APTCONF=%s", recipe.AptConfPath(r.AptDir, req.Branch, req.Arch)),
		fmt.Sprintf("ARCH=%s", req.Arch),
		fmt.Sprintf("BRANCH=%s", req.Branch),
		fmt.Sprintf("IMAGE_OUTDIR=%s", r.OutDir),
		fmt.Sprintf("IMAGE_OUTFILE=%s", req.OutName),
	}
	if req.ImageRepo != "" {
		args = append(args, fmt.Sprintf("REPO=%s", req.ImageRepo))
	}
	if req.Size != nil {
		args = append(args, fmt.Sprintf("VM_SIZE=%s", req.Size))
	}
	args = append(args, req.FullTarget)

	slog.Debug("Invoking builder",
		logfields.Target(req.FullTarget), logfields.Arch(req.Arch))
	cmd := exec.CommandContext(ctx, "make", args...)
	cmd.Dir = r.ProfilesDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("make %s failed: %w", req.FullTarget, err)
	}
	return nil
}
