package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/recipe-arbiter/arbiter/src/arbiter/report"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Compare public recipes with the internal mirror",
		Long: `Load every public recipe repository and the internal mirror of the public
recipes, then print one row per recipe.

In content mode rows say whether both sides hold byte-identical recipes. In
metadata mode (--mode metadata) nothing is cloned and rows show the latest
commit time on each side instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			table, err := a.computeDiff(cmd.Context())
			if err != nil {
				return err
			}
			return opts.write(table, func(w io.Writer) error {
				return report.WriteTable(w, table)
			})
		},
	}
}
