// Package cli is the arbiter command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/recipe-arbiter/arbiter/src/arbiter/config"
	"github.com/recipe-arbiter/arbiter/src/arbiter/logging"
	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
	"github.com/recipe-arbiter/arbiter/src/arbiter/report"
)

// RootOptions holds global flags for all commands and what they resolve to.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Format     string
	Mode       string
	UseCache   bool
	WorkDir    string
	VCS        string

	// Resolved in PersistentPreRunE.
	Config *config.Config
	Logger *slog.Logger
	RunID  string
	format report.Format
	mode   recipe.Mode

	Stdin  *os.File
	Stdout io.Writer
	Stderr io.Writer

	// Now is the clock used for branch names.
	Now func() time.Time
}

// NewRootCommand creates the root command of the arbiter CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr, Now: time.Now})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Reconcile public and internal recipe repositories",
		Long: `arbiter compares the recipes of the public per-package repositories with
the internal copy of those recipes and opens pull requests carrying changes
from one side to the other.

Configuration comes from an optional YAML file (--config) and ARBITER_*
environment variables; flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}
	if opts.Stdin != nil {
		cmd.SetIn(opts.Stdin)
	}
	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)

	f := cmd.PersistentFlags()
	f.StringVar(&opts.ConfigPath, "config", "", "path to a YAML configuration file")
	f.StringVarP(&opts.LogLevel, "log-level", "l", "", "log level (debug|info|warn|error)")
	f.StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")
	f.StringVar(&opts.Format, "format", "table", "output format (table|json)")
	f.StringVar(&opts.Mode, "mode", "", "comparison mode (content|metadata)")
	f.BoolVarP(&opts.UseCache, "use-cache", "d", false, "answer from cached responses and reuse existing clones")
	f.StringVar(&opts.WorkDir, "work-dir", "", "directory holding the clones")
	f.StringVar(&opts.VCS, "vcs", "", "version control backend (cli|gogit)")

	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts, "externalize", "push"))
	cmd.AddCommand(NewSyncCommand(opts, "internalize", "pull"))
	cmd.AddCommand(NewServeCommand(opts))
	return cmd
}

// resolve loads the configuration, applies flag overrides and sets up
// logging.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitUsage, "invalid configuration", err)
	}
	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("log-level", &cfg.LogLevel, o.LogLevel)
	override("log-format", &cfg.LogFormat, o.LogFormat)
	override("mode", &cfg.Mode, o.Mode)
	override("work-dir", &cfg.WorkDir, o.WorkDir)
	override("vcs", &cfg.VCS, o.VCS)
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitUsage, "invalid configuration", err)
	}

	if o.format, err = report.ParseFormat(o.Format); err != nil {
		return WrapExitError(ExitUsage, "invalid flag", err)
	}
	if o.mode, err = recipe.ParseMode(cfg.Mode); err != nil {
		return WrapExitError(ExitUsage, "invalid flag", err)
	}

	o.Config = cfg
	o.Logger, o.RunID = logging.Init(o.Stderr, cfg.LogLevel, cfg.LogFormat)
	o.Logger.Debug("Configuration resolved", "forge", cfg.Forge, "mode", o.mode.String(),
		"cache", cfg.CacheBackend, "vcs", cfg.VCS, "work_dir", cfg.WorkDir)
	return nil
}

func (o *RootOptions) write(v any, text func(io.Writer) error) error {
	if o.format == report.FormatJSON {
		return report.WriteJSON(o.Stdout, v)
	}
	if err := text(o.Stdout); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
