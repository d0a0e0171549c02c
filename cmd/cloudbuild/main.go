package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
	"git.home.luguber.info/inful/cloudbuild/internal/metrics"
	"git.home.luguber.info/inful/cloudbuild/internal/orchestrator"
	"git.home.luguber.info/inful/cloudbuild/internal/publish"
	"git.home.luguber.info/inful/cloudbuild/internal/workspace"
)

var CLI struct {
	Config  string `short:"c" help:"Path to configuration file" default:"/etc/cloudbuild/config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`
	DataDir string `short:"d" help:"Data directory (default: $XDG_DATA_HOME/cloudbuild)"`

	Run struct {
		NoTests          bool     `help:"Disable running tests on built images"`
		NoSign           bool     `help:"Disable creating checksums and signing them"`
		CreateRemoteDirs bool     `help:"Create remote directories before syncing"`
		BuiltImagesDir   string   `help:"Sign and sync pre-built images from this directory instead of building"`
		Task             []string `help:"Add a task repository to a branch (BRANCH=ID)"`
	} `cmd:"" help:"Build, test, sign and sync the whole image matrix"`

	Build struct {
		NoTests bool     `help:"Disable running tests on built images"`
		Task    []string `help:"Add a task repository to a branch (BRANCH=ID)"`
	} `cmd:"" help:"Build and test the image matrix without publishing"`

	Sign struct {
		BuiltImagesDir string `help:"Sign pre-built images from this directory"`
	} `cmd:"" help:"Create and sign checksum manifests over the publish tree"`

	Sync struct {
		NoSign           bool   `help:"Disable creating checksums and signing them"`
		CreateRemoteDirs bool   `help:"Create remote directories before syncing"`
		BuiltImagesDir   string `help:"Sync pre-built images from this directory"`
	} `cmd:"" help:"Sign and sync the publish tree to the remote"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(CLI.Config, nil)
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}
	if !CLI.Verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel),
		})))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, kctx.Command(), cfg); err != nil {
		slog.Error("Run failed", logfields.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config) error {
	builtImagesDir := ""
	switch command {
	case "run":
		builtImagesDir = CLI.Run.BuiltImagesDir
	case "sign":
		builtImagesDir = CLI.Sign.BuiltImagesDir
	case "sync":
		builtImagesDir = CLI.Sync.BuiltImagesDir
	}

	ws, err := workspace.Open(CLI.DataDir, builtImagesDir)
	if err != nil {
		return err
	}
	defer ws.Close()

	runID := uuid.NewString()
	slog.Info("Starting cloudbuild", logfields.RunID(runID), logfields.Path(ws.DataDir()))

	remote := workspace.ExpandPath(cfg.Remote)
	topo := publish.NewTopology(ws.ImagesDir(), remote)
	signer := &publish.Signer{Key: string(cfg.Key)}

	switch command {
	case "run":
		// with --built-images-dir the images already exist, go straight
		// to publishing
		if !ws.NoBuild() {
			tasks, err := parseTasks(CLI.Run.Task)
			if err != nil {
				return err
			}
			orch := orchestrator.New(cfg, ws, topo, nil, metrics.NoopRecorder{})
			orch.NoTests = CLI.Run.NoTests
			orch.Tasks = tasks
			if _, err := orch.CreateImages(ctx); err != nil {
				return err
			}
		}
		if cfg.ExternalFiles != "" {
			dir := workspace.ExpandPath(cfg.ExternalFiles)
			if err := publish.CopyExternalFiles(cfg, topo, dir); err != nil {
				return err
			}
		}
		if !CLI.Run.NoSign {
			if err := signer.SignAll(ctx, topo.Dirs(cfg)); err != nil {
				return err
			}
		}
		syncer := &publish.Syncer{NoDelete: *cfg.NoDelete, CreateRemoteDirs: CLI.Run.CreateRemoteDirs}
		if err := syncer.Sync(ctx, topo.Pairs(cfg)); err != nil {
			return err
		}
		return publish.AfterSync(ctx, remote, cfg.AfterSyncCommands)

	case "build":
		tasks, err := parseTasks(CLI.Build.Task)
		if err != nil {
			return err
		}
		orch := orchestrator.New(cfg, ws, topo, nil, metrics.NoopRecorder{})
		orch.NoTests = CLI.Build.NoTests
		orch.Tasks = tasks
		_, err = orch.CreateImages(ctx)
		return err

	case "sign":
		return signer.SignAll(ctx, topo.Dirs(cfg))

	case "sync":
		if !CLI.Sync.NoSign {
			if err := signer.SignAll(ctx, topo.Dirs(cfg)); err != nil {
				return err
			}
		}
		syncer := &publish.Syncer{NoDelete: *cfg.NoDelete, CreateRemoteDirs: CLI.Sync.CreateRemoteDirs}
		if err := syncer.Sync(ctx, topo.Pairs(cfg)); err != nil {
			return err
		}
		return publish.AfterSync(ctx, remote, cfg.AfterSyncCommands)
	}
	return fmt.Errorf("unknown command %q", command)
}

// parseTasks turns repeated BRANCH=ID flags into a per-branch task list,
// keyed by lowercased branch name.
func parseTasks(raw []string) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	tasks := map[string][]string{}
	for _, entry := range raw {
		branch, id, ok := strings.Cut(entry, "=")
		if !ok || branch == "" || id == "" {
			return nil, fmt.Errorf("invalid task %q, expected BRANCH=ID", entry)
		}
		key := strings.ToLower(branch)
		tasks[key] = append(tasks[key], id)
	}
	return tasks, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
