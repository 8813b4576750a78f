package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/recipe-arbiter/arbiter/src/arbiter/diff"
	"github.com/recipe-arbiter/arbiter/src/arbiter/report"
	"github.com/recipe-arbiter/arbiter/src/arbiter/syncer"
)

// SyncOptions holds flags for externalize and internalize.
type SyncOptions struct {
	*RootOptions
	DryRun bool
}

var syncDescriptions = map[string]string{
	"externalize": `Copy the internal state of every recipe that differs to its public
repository, one branch and one pull request per recipe.`,
	"internalize": `Copy the public state of every recipe that differs into the internal
distribution, one branch and one pull request per recipe. Recipes without a
directory in the distribution are skipped.`,
}

// NewSyncCommand creates the externalize or internalize command.
func NewSyncCommand(rootOpts *RootOptions, action, alias string) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}
	direction, err := syncer.ParseDirection(action)
	if err != nil {
		panic(err)
	}

	cmd := &cobra.Command{
		Use:     action,
		Aliases: []string{alias},
		Short:   fmt.Sprintf("Open pull requests to %s recipes", action),
		Long:    syncDescriptions[action],
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, direction)
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "commit on local branches but do not push or open pull requests")
	return cmd
}

type syncReport struct {
	Diff *diff.Table `json:"diff"`
	report.OutcomeReport
}

func runSync(cmd *cobra.Command, opts *SyncOptions, direction syncer.Direction) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeApp(a, &err)

	table, err := a.computeDiff(ctx)
	if err != nil {
		return err
	}

	outcomes, err := a.synchronize(ctx, table, direction, opts.DryRun)
	if err != nil {
		return err
	}

	err = opts.write(syncReport{Diff: table, OutcomeReport: report.NewOutcomeReport(outcomes)}, func(w io.Writer) error {
		if err := report.WriteTable(w, table); err != nil {
			return err
		}
		fmt.Fprintln(w)
		return report.WriteOutcomes(w, outcomes)
	})
	if err != nil {
		return err
	}

	if s := syncer.Summarize(outcomes); s.AllFailed() {
		return NewExitError(ExitAllFailed, fmt.Sprintf("all %d recipe(s) failed to %s", s.Failed, direction))
	}
	return nil
}
