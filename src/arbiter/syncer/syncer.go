// Package syncer carries recipes flagged by a diff table across to the other
// side, one branch and one pull request per recipe.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/corpus"
	"github.com/recipe-arbiter/arbiter/src/arbiter/diff"
	"github.com/recipe-arbiter/arbiter/src/arbiter/hosting"
	"github.com/recipe-arbiter/arbiter/src/arbiter/vcs"
)

// BranchTimeFormat is the timestamp suffix of sync branches.
const BranchTimeFormat = "20060102150405"

// Remote is the remote every clone pushes to.
const Remote = "origin"

// Orchestrator runs sync batches. Recipes are processed one at a time in
// name order; a failing recipe is rolled back and the batch moves on.
type Orchestrator struct {
	forge  hosting.Forge
	ws     *vcs.Workspace
	layout corpus.Layout
	reuse  bool
	now    func() time.Time
	log    *slog.Logger
}

// Options tunes an Orchestrator.
type Options struct {
	// ReuseClones opens clones already in the workspace as they are.
	// Otherwise a batch clones each repository afresh the first time it
	// needs it, so leftovers of earlier runs never reach a pull request.
	ReuseClones bool
	// Now is the clock used for branch names.
	Now    func() time.Time
	Logger *slog.Logger
}

func New(forge hosting.Forge, ws *vcs.Workspace, layout corpus.Layout, opts Options) *Orchestrator {
	now, log := opts.Now, opts.Logger
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{forge: forge, ws: ws, layout: layout, reuse: opts.ReuseClones, now: now, log: log}
}

// batch is the state shared by the recipes of one Synchronize call.
type batch struct {
	direction Direction
	stamp     string
	dryRun    bool
	// cloned holds the clones already refreshed in this batch.
	cloned map[string]bool
}

// Synchronize processes every candidate of table in direction. The error is
// reserved for unusable arguments; per-recipe problems are reported in the
// outcomes.
func (o *Orchestrator) Synchronize(ctx context.Context, table *diff.Table, direction Direction, dryRun bool) ([]Outcome, error) {
	if table == nil {
		return nil, errors.New("sync: diff table is required")
	}
	if direction != Externalize && direction != Internalize {
		return nil, fmt.Errorf("sync: %v", direction)
	}

	rows := Candidates(table, direction)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Recipe < rows[j].Recipe })
	o.log.Info("Starting sync", "direction", direction.String(), "candidates", len(rows), "dry_run", dryRun)

	b := &batch{
		direction: direction,
		stamp:     o.now().UTC().Format(BranchTimeFormat),
		dryRun:    dryRun,
		cloned:    make(map[string]bool),
	}
	outcomes := make([]Outcome, 0, len(rows))
	for _, row := range rows {
		outcomes = append(outcomes, o.syncRecipe(ctx, b, row))
	}

	s := Summarize(outcomes)
	o.log.Info("Sync finished", "direction", direction.String(),
		"succeeded", s.Succeeded, "skipped", s.Skipped, "failed", s.Failed)
	return outcomes, nil
}

func (o *Orchestrator) syncRecipe(ctx context.Context, b *batch, row diff.Row) Outcome {
	out := Outcome{Recipe: row.Recipe, Direction: b.direction, Step: StepSelect}
	log := o.log.With("recipe", row.Recipe, "direction", b.direction.String())

	task, dest, err := o.prepare(ctx, b, row)
	if err != nil {
		out.Err = apperr.New(apperr.Sync, string(StepSelect), err)
		if errors.Is(err, apperr.ErrMissingCounterpart) || errors.Is(err, apperr.ErrNoCounterpartRepo) {
			out.Status = Skipped
			log.Info("Skipping recipe", "reason", err)
		} else {
			out.Status = Failed
			log.Error("Recipe sync failed", "step", StepSelect, "error", err)
		}
		return out
	}
	out.Branch = task.Branch
	log = log.With("branch", task.Branch)

	url, step, err := o.apply(ctx, task, dest, b.dryRun, log)
	out.Step = step
	if err != nil {
		out.Status = Failed
		out.Err = apperr.New(apperr.Sync, string(step), err)
		log.Error("Recipe sync failed", "step", step, "error", err)
		if derr := dest.Discard(ctx, o.layout.Mainline); derr != nil {
			log.Warn("Could not restore mainline", "error", derr)
		}
		return out
	}
	out.Status = Succeeded
	out.Step = ""
	out.PullRequestURL = url
	return out
}

// prepare resolves the task for row and makes sure both clones exist and
// sit on mainline.
func (o *Orchestrator) prepare(ctx context.Context, b *batch, row diff.Row) (Task, vcs.Repository, error) {
	lay := o.layout
	name := row.Recipe
	direction := b.direction
	task := Task{
		Recipe:    name,
		Direction: direction,
		Branch:    fmt.Sprintf("%s_%s_%s", direction, name, b.stamp),
	}

	var srcOwner, srcRepo, dstOwner, dstRepo string
	switch direction {
	case Externalize:
		if !row.PresentInPublic {
			return task, nil, fmt.Errorf("%w: %s", apperr.ErrNoCounterpartRepo, lay.PublicRepo(name))
		}
		srcOwner, srcRepo = lay.InternalOwner, lay.MirrorRepo
		task.SourceClone, task.SourcePath = lay.MirrorClone(), lay.MirrorRecipeDir(name)
		dstOwner, dstRepo = lay.PublicOrg, lay.PublicRepo(name)
		task.DestinationClone, task.DestinationPath = lay.PublicClone(name), lay.PublicRecipeDir(name)
	case Internalize:
		srcOwner, srcRepo = lay.PublicOrg, lay.PublicRepo(name)
		task.SourceClone, task.SourcePath = lay.PublicClone(name), lay.PublicRecipeDir(name)
		dstOwner, dstRepo = lay.InternalOwner, lay.DistributionRepo
		task.DestinationClone, task.DestinationPath = lay.DistributionClone(), lay.InternalRecipeDir(name)
	}
	task.DestinationOwner, task.DestinationRepo = dstOwner, dstRepo

	src, err := o.clone(ctx, b, task.SourceClone, srcOwner, srcRepo)
	if err != nil {
		return task, nil, fmt.Errorf("preparing %s/%s: %w", srcOwner, srcRepo, err)
	}
	if err := src.Checkout(ctx, lay.Mainline); err != nil {
		return task, nil, err
	}
	if !o.ws.Exists(task.SourcePath) {
		return task, nil, fmt.Errorf("source %s does not exist", task.SourcePath)
	}

	dest, err := o.clone(ctx, b, task.DestinationClone, dstOwner, dstRepo)
	if err != nil {
		return task, nil, fmt.Errorf("preparing %s/%s: %w", dstOwner, dstRepo, err)
	}
	if err := dest.Discard(ctx, lay.Mainline); err != nil {
		return task, nil, err
	}
	if direction == Internalize && !o.ws.Exists(task.DestinationPath) {
		return task, nil, fmt.Errorf("%w: %s", apperr.ErrMissingCounterpart, task.DestinationPath)
	}
	return task, dest, nil
}

// clone returns the workspace clone of owner/repo. Outside of ReuseClones the
// first use in a batch replaces whatever an earlier run left behind.
func (o *Orchestrator) clone(ctx context.Context, b *batch, name, owner, repo string) (vcs.Repository, error) {
	r, err := o.ws.Ensure(ctx, name, o.forge.CloneURL(owner, repo), o.reuse || b.cloned[name])
	if err != nil {
		return nil, err
	}
	b.cloned[name] = true
	return r, nil
}

// apply runs the branch to publish steps and returns the step reached.
func (o *Orchestrator) apply(ctx context.Context, task Task, dest vcs.Repository, dryRun bool, log *slog.Logger) (string, Step, error) {
	mainline := o.layout.Mainline

	if err := dest.CreateBranch(ctx, task.Branch, mainline); err != nil {
		return "", StepBranch, err
	}
	if err := vcs.ReplaceTree(o.ws.FS(), task.SourcePath, task.DestinationPath); err != nil {
		return "", StepReplace, err
	}

	untracked, err := dest.Untracked(ctx)
	if err != nil {
		return "", StepStage, err
	}
	if len(untracked) > 0 {
		log.Debug("Staging new files", "files", len(untracked))
		if err := dest.Add(ctx, untracked...); err != nil {
			return "", StepStage, err
		}
	}

	if err := dest.CommitAll(ctx, task.commitMessage()); err != nil {
		return "", StepCommit, err
	}
	if err := dest.Merge(ctx, mainline); err != nil {
		return "", StepReconcile, err
	}

	if dryRun {
		log.Info("Not opening PR", "repo", task.DestinationOwner+"/"+task.DestinationRepo)
		return "", StepPublish, dest.Checkout(ctx, mainline)
	}

	log.Info("Opening PR", "repo", task.DestinationOwner+"/"+task.DestinationRepo)
	if err := dest.Push(ctx, Remote, task.Branch); err != nil {
		return "", StepPublish, err
	}
	url, err := o.forge.CreatePullRequest(ctx, task.DestinationOwner, task.DestinationRepo, hosting.PullRequest{
		Title: task.title(),
		Body:  task.body(),
		Head:  task.Branch,
		Base:  mainline,
	})
	if err != nil {
		return "", StepPublish, err
	}
	log.Info("Opened PR", "url", url)
	return url, StepPublish, dest.Checkout(ctx, mainline)
}
