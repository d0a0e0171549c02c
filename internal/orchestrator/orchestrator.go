// Package orchestrator drives the build matrix: it expands units, consults
// the staleness oracle, invokes the external builder, places and renames
// artifacts, runs smoke tests, and aggregates failures per the configured
// failure policy.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/cloudbuild/internal/builder"
	"git.home.luguber.info/inful/cloudbuild/internal/cache"
	"git.home.luguber.info/inful/cloudbuild/internal/config"
	"git.home.luguber.info/inful/cloudbuild/internal/imagetest"
	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
	"git.home.luguber.info/inful/cloudbuild/internal/matrix"
	"git.home.luguber.info/inful/cloudbuild/internal/metrics"
	"git.home.luguber.info/inful/cloudbuild/internal/profiles"
	"git.home.luguber.info/inful/cloudbuild/internal/publish"
	"git.home.luguber.info/inful/cloudbuild/internal/recipe"
	"git.home.luguber.info/inful/cloudbuild/internal/rename"
	"git.home.luguber.info/inful/cloudbuild/internal/workspace"
)

// Builder abstracts the external image builder so tests can substitute one.
type Builder interface {
	Build(ctx context.Context, req builder.Request) error
}

// profileTree is the slice of profiles.Checkout the orchestrator depends on.
type profileTree interface {
	Ensure(ctx context.Context) error
	InstallScripts(im *config.Image, scripts config.ScriptList) error
	RemoveScripts()
}

// Artifact is one published image produced (or reused) by a matrix run.
type Artifact struct {
	Unit   matrix.Unit
	Path   string // published path
	Cached bool   // reused from the output cache without rebuilding
}

// Orchestrator runs the whole build matrix against a locked workspace.
type Orchestrator struct {
	cfg      *config.Config
	ws       *workspace.Workspace
	topo     *publish.Topology
	oracle   *cache.Oracle
	checkout profileTree
	builder  Builder
	rec      metrics.Recorder

	// NoTests disables smoke tests after building.
	NoTests bool
	// Tasks adds task repositories per lowercased branch name.
	Tasks map[string][]string
}

// New wires an orchestrator from its collaborators. A nil bld selects the
// real make-based builder; a nil rec selects the noop recorder.
func New(cfg *config.Config, ws *workspace.Workspace, topo *publish.Topology, bld Builder, rec metrics.Recorder) *Orchestrator {
	if bld == nil {
		bld = &builder.Runner{
			ProfilesDir: ws.ProfilesDir(),
			AptDir:      ws.AptDir(),
			OutDir:      ws.OutDir(),
			Timeout:     cfg.CommandTimeout.Duration,
		}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Orchestrator{
		cfg:      cfg,
		ws:       ws,
		topo:     topo,
		oracle:   cache.New(cfg.RebuildAfter.Duration),
		checkout: profiles.NewCheckout(ws.ProfilesDir(), workspace.ExpandPath(cfg.MkimageProfilesGit)),
		builder:  bld,
		rec:      rec,
	}
}

// CreateImages prepares the builder configuration and runs the full matrix.
// Under the default fail-fast policy the first unit failure aborts the run;
// with try_build_all every unit is attempted and the failures are returned
// together as a MultipleBuildErrors. A failing smoke test aborts immediately
// regardless of policy.
func (o *Orchestrator) CreateImages(ctx context.Context) ([]Artifact, error) {
	if o.ws.NoBuild() {
		return nil, fmt.Errorf("trying to build images when build stage should be skipped")
	}
	started := time.Now()

	if err := o.topo.EnsureDirs(o.cfg); err != nil {
		return nil, err
	}
	if err := o.topo.ClearDirs(o.cfg); err != nil {
		return nil, err
	}
	if err := o.prepare(ctx); err != nil {
		return nil, err
	}
	defer o.cleanup()

	units := matrix.Expand(o.cfg)
	artifacts, err := o.runMatrix(ctx, units)
	if err != nil {
		o.rec.IncRunOutcome("failed")
		return artifacts, err
	}

	if err := o.oracle.Sweep(o.ws.OutDir()); err != nil {
		return artifacts, err
	}
	o.rec.ObserveStageDuration("build", time.Since(started))
	o.rec.IncRunOutcome("success")
	return artifacts, nil
}

// prepare refreshes the profiles checkout and regenerates the build fragment
// and apt files. The fragment must be complete before any unit build starts.
func (o *Orchestrator) prepare(ctx context.Context) error {
	started := time.Now()
	if err := o.checkout.Ensure(ctx); err != nil {
		return err
	}
	if err := recipe.Generate(o.cfg, o.ws.ProfilesDir()); err != nil {
		return err
	}
	if err := recipe.GenerateAptFiles(o.cfg, o.ws.AptDir(), o.Tasks); err != nil {
		return err
	}
	o.rec.ObserveStageDuration("prepare", time.Since(started))
	return nil
}

// cleanup restores the profiles checkout: installed hook scripts and the
// generated fragment are removed.
func (o *Orchestrator) cleanup() {
	o.checkout.RemoveScripts()
	if err := recipe.Remove(o.ws.ProfilesDir()); err != nil {
		slog.Warn("Failed to remove build fragment", logfields.Error(err))
	}
}

// runMatrix processes units strictly sequentially in matrix order.
// Cancellation is honored at unit boundaries only; an in-flight external
// build finishes or fails on its own.
func (o *Orchestrator) runMatrix(ctx context.Context, units []matrix.Unit) ([]Artifact, error) {
	var artifacts []Artifact
	var buildErrors []*BuildError
	currentImage := ""

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		// Scripts are image-scoped shared state in the profile tree;
		// reinstall them whenever the matrix moves to the next image.
		if unit.Image != currentImage {
			im := o.cfg.Image(unit.Image)
			if err := o.checkout.InstallScripts(im, o.cfg.Scripts); err != nil {
				return artifacts, err
			}
			currentImage = unit.Image
		}

		artifact, buildErr, err := o.runUnit(ctx, unit)
		if err != nil {
			return artifacts, err
		}
		if buildErr != nil {
			if !o.cfg.TryBuildAll {
				return artifacts, buildErr
			}
			buildErrors = append(buildErrors, buildErr)
			continue
		}
		artifacts = append(artifacts, *artifact)
	}

	if len(buildErrors) > 0 {
		return artifacts, &MultipleBuildErrors{Errors: buildErrors}
	}
	return artifacts, nil
}

// runUnit executes one build unit through its state machine. The second
// return value is a per-unit failure subject to the failure policy; the third
// is a fatal error aborting the run regardless of policy.
func (o *Orchestrator) runUnit(ctx context.Context, unit matrix.Unit) (*Artifact, *BuildError, error) {
	escaped := unit.Meta.Target + "_" + config.EscapeBranch(unit.Branch)
	fullTarget := escaped + "." + unit.Kind
	outName := filepath.Base(escaped) + "-" + unit.Arch + "." + unit.Kind
	outPath := filepath.Join(o.ws.OutDir(), outName)

	rebuild, err := o.oracle.ShouldRebuild(outPath)
	if err != nil {
		return nil, nil, err
	}
	cached := !rebuild
	if cached {
		slog.Info("Skip building", logfields.Target(fullTarget), logfields.Arch(unit.Arch))
		o.rec.IncUnitResult(unit.Branch, unit.Arch, metrics.UnitSkipped)
	} else {
		slog.Info("Begin building", logfields.Target(fullTarget), logfields.Arch(unit.Arch))
		started := time.Now()
		buildErr := o.builder.Build(ctx, builder.Request{
			FullTarget: fullTarget,
			Branch:     unit.Branch,
			Arch:       unit.Arch,
			OutName:    outName,
			ImageRepo:  o.cfg.ResolveImageRepo(unit.Branch, unit.Arch),
			Size:       unit.Meta.Size,
		})
		o.rec.ObserveUnitDuration(unit.Branch, unit.Arch, time.Since(started))

		// The output file is the authoritative success signal.
		if _, statErr := os.Stat(outPath); buildErr != nil || statErr != nil {
			if buildErr != nil {
				slog.Error("Builder failed", logfields.Target(fullTarget),
					logfields.Arch(unit.Arch), logfields.Error(buildErr))
			}
			o.rec.IncUnitResult(unit.Branch, unit.Arch, metrics.UnitFailed)
			return nil, &BuildError{Target: fullTarget, Arch: unit.Arch}, nil
		}
		slog.Info("End building", logfields.Target(fullTarget), logfields.Arch(unit.Arch))
		o.rec.IncUnitResult(unit.Branch, unit.Arch, metrics.UnitBuilt)
	}

	published, err := o.publishArtifact(ctx, unit, outPath)
	if err != nil {
		return nil, nil, err
	}

	if !o.NoTests {
		for _, test := range unit.Meta.Tests {
			slog.Info("Testing image", logfields.Image(unit.Image),
				logfields.Branch(unit.Branch), logfields.Arch(unit.Arch))
			if err := imagetest.Run(ctx, test.Method, published, unit.Branch, unit.Arch); err != nil {
				return nil, nil, err
			}
		}
	}

	return &Artifact{Unit: unit, Path: published, Cached: cached}, nil, nil
}

// publishArtifact resolves the published name via the rename rule and links
// the output tarball into the publish tree.
func (o *Orchestrator) publishArtifact(ctx context.Context, unit matrix.Unit, outPath string) (string, error) {
	name := fmt.Sprintf("alt-%s-%s-%s.%s",
		strings.ToLower(unit.Branch), unit.Image, unit.Arch, unit.Kind)
	name, err := rename.Apply(ctx, unit.Meta.Rename, name)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(o.topo.Dir(unit.Branch, unit.Arch), name)
	if err := publish.Install(outPath, dst, false); err != nil {
		return "", err
	}
	return dst, nil
}
