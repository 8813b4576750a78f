// Package report renders diff tables and sync outcomes for people and for
// other programs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/recipe-arbiter/arbiter/src/arbiter/diff"
	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
	"github.com/recipe-arbiter/arbiter/src/arbiter/syncer"
)

// Format selects the rendering of command output.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// TimeLayout is used for modification times in text output.
const TimeLayout = "2006-01-02 15:04:05"

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// WriteTable renders t as aligned columns followed by a one-line summary.
// Metadata tables show both modification times instead of a verdict.
func WriteTable(w io.Writer, t *diff.Table) error {
	tw := newTabWriter(w)
	if t.Mode == recipe.MetadataMode {
		fmt.Fprintln(tw, "RECIPE\tPUBLIC\tINTERNAL\tPUBLIC MODIFIED\tINTERNAL MODIFIED")
		for _, r := range t.Rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Recipe,
				yesNo(r.PresentInPublic), yesNo(r.PresentInInternal),
				stamp(r.PublicModified), stamp(r.InternalModified))
		}
	} else {
		fmt.Fprintln(tw, "RECIPE\tPUBLIC\tINTERNAL\tEQUAL")
		for _, r := range t.Rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Recipe,
				yesNo(r.PresentInPublic), yesNo(r.PresentInInternal), verdict(r))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	c := t.Counts()
	_, err := fmt.Fprintf(w, "\n%d recipes: %d equal, %d different, %d timestamps, %d n/a\n",
		len(t.Rows), c[diff.Equal], c[diff.Different], c[diff.Timestamps], c[diff.NotApplicable])
	return err
}

// WriteOutcomes renders one line per recipe of a sync batch and a summary.
func WriteOutcomes(w io.Writer, outcomes []syncer.Outcome) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "RECIPE\tDIRECTION\tSTATUS\tSTEP\tBRANCH\tDETAIL")
	for _, o := range outcomes {
		detail := o.PullRequestURL
		if o.Err != nil {
			detail = o.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", o.Recipe, o.Direction, o.Status,
			dash(string(o.Step)), dash(o.Branch), dash(detail))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := syncer.Summarize(outcomes)
	_, err := fmt.Fprintf(w, "\n%d succeeded, %d skipped, %d failed\n", s.Succeeded, s.Skipped, s.Failed)
	return err
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// OutcomeReport is the JSON document for a sync batch.
type OutcomeReport struct {
	Outcomes []syncer.Outcome `json:"outcomes"`
	Summary  syncer.Summary   `json:"summary"`
}

func NewOutcomeReport(outcomes []syncer.Outcome) OutcomeReport {
	if outcomes == nil {
		outcomes = []syncer.Outcome{}
	}
	return OutcomeReport{Outcomes: outcomes, Summary: syncer.Summarize(outcomes)}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func verdict(r diff.Row) string {
	eq, ok := r.Equal()
	if !ok {
		return "n/a"
	}
	if eq {
		return "true"
	}
	return "false"
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(TimeLayout)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
