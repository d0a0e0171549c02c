package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
)

// Syncer mirrors each resolved local publish directory to its remote address
// via rsync. Remote deletion of files absent locally is gated by NoDelete.
type Syncer struct {
	NoDelete         bool
	CreateRemoteDirs bool
}

// Sync pushes every pair in order. With CreateRemoteDirs set, local-path
// remotes are created first (useful for file-system remotes and tests).
func (s *Syncer) Sync(ctx context.Context, pairs []Pair) error {
	for _, pair := range pairs {
		if s.CreateRemoteDirs {
			if err := os.MkdirAll(pair.Remote, 0o750); err != nil {
				return fmt.Errorf("failed to create remote directory %q: %w", pair.Remote, err)
			}
		}
		args := []string{pair.LocalDir + "/", "-rv", pair.Remote}
		if !s.NoDelete {
			args = append(args, "--delete")
		}
		slog.Info("Syncing images", logfields.Path(pair.LocalDir), logfields.Remote(pair.Remote))
		cmd := exec.CommandContext(ctx, "rsync", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("rsync to %q failed: %w", pair.Remote, err)
		}
	}
	return nil
}

// AfterSync runs the configured post-sync commands. A remote address of the
// host:path form runs them through ssh on that host; otherwise they run
// locally.
func AfterSync(ctx context.Context, remote string, commands []string) error {
	host := ""
	if colon := strings.IndexByte(remote, ':'); colon != -1 {
		host = remote[:colon]
	}
	for _, command := range commands {
		var cmd *exec.Cmd
		if host != "" {
			cmd = exec.CommandContext(ctx, "ssh", host, command)
		} else {
			cmd = exec.CommandContext(ctx, "sh", "-c", command)
		}
		slog.Info("Running after-sync command", slog.String("command", command))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("after-sync command %q failed: %w", command, err)
		}
	}
	return nil
}
