package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/recipe-arbiter/arbiter/src/arbiter/report"
	"github.com/recipe-arbiter/arbiter/src/arbiter/syncer"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	// Sync names the batch run before serving, if any.
	Sync   string
	DryRun bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the diff table over HTTP",
		Long: `Compute the diff once and serve it read-only:

  GET /health
  GET /api/diff
  GET /api/diff/{recipe}
  GET /api/outcomes

With --sync the diff is followed by one externalize or internalize batch
whose outcomes are served on /api/outcomes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (defaults to the configured listen_addr)")
	cmd.Flags().StringVar(&opts.Sync, "sync", "", "run a sync batch before serving (externalize|internalize)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "with --sync, commit on local branches but do not push or open pull requests")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeApp(a, &err)

	srv, err := opts.prepare(ctx, a)
	if err != nil {
		return err
	}

	addr := opts.Listen
	if addr == "" {
		addr = opts.Config.ListenAddr
	}
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return WrapExitError(ExitFailure, "serving report", err)
	}
	return nil
}

// prepare builds the report server and publishes the diff and, with --sync,
// the outcomes of the batch.
func (o *ServeOptions) prepare(ctx context.Context, a *app) (*report.Server, error) {
	var direction syncer.Direction
	if o.Sync != "" {
		d, err := syncer.ParseDirection(o.Sync)
		if err != nil {
			return nil, WrapExitError(ExitUsage, "invalid flag", err)
		}
		direction = d
	}

	srv := report.NewServer(report.ServerOptions{
		AllowedOrigins: o.Config.CORSOrigins,
		Storage:        a.store,
		Logger:         o.Logger,
	})
	table, err := a.computeDiff(ctx)
	if err != nil {
		return nil, err
	}
	srv.SetDiff(table)

	if direction != 0 {
		outcomes, err := a.synchronize(ctx, table, direction, o.DryRun)
		if err != nil {
			return nil, err
		}
		srv.SetOutcomes(outcomes)
	}
	return srv, nil
}
