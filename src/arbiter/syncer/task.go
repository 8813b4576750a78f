package syncer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recipe-arbiter/arbiter/src/arbiter/diff"
)

// Direction is the way recipe state flows in a sync batch.
type Direction int

const (
	// Externalize copies the internal state of a recipe to its public
	// repository.
	Externalize Direction = iota + 1
	// Internalize copies the public state of a recipe into the internal
	// distribution.
	Internalize
)

func (d Direction) String() string {
	switch d {
	case Externalize:
		return "externalize"
	case Internalize:
		return "internalize"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// ParseDirection accepts the action names and their push/pull aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "externalize", "push":
		return Externalize, nil
	case "internalize", "pull":
		return Internalize, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

func (d Direction) sourceIsPublic() bool { return d == Internalize }

// candidate reports whether row needs syncing in direction d.
func candidate(row diff.Row, d Direction) bool {
	srcPresent := row.PresentInInternal
	if d.sourceIsPublic() {
		srcPresent = row.PresentInPublic
	}
	switch row.Comparison {
	case diff.Different:
		return true
	case diff.NotApplicable:
		return srcPresent
	case diff.Timestamps:
		if d.sourceIsPublic() {
			return row.PublicModified.After(row.InternalModified)
		}
		return row.InternalModified.After(row.PublicModified)
	default:
		return false
	}
}

// Candidates returns the rows of table that a batch in direction d would
// process, in table order.
func Candidates(table *diff.Table, d Direction) []diff.Row {
	var out []diff.Row
	for _, r := range table.Rows {
		if candidate(r, d) {
			out = append(out, r)
		}
	}
	return out
}

// Task is the plan for one recipe. Paths and clones are workspace-relative.
type Task struct {
	Recipe    string
	Direction Direction

	SourceClone string
	SourcePath  string

	DestinationClone string
	DestinationPath  string
	DestinationOwner string
	DestinationRepo  string

	Branch string
}

func (t Task) commitMessage() string {
	return fmt.Sprintf("Update %s recipe with %s changes", t.Recipe, t.changes())
}

func (t Task) title() string {
	return fmt.Sprintf("Update %s with %s changes", t.Recipe, t.changes())
}

func (t Task) body() string {
	return fmt.Sprintf("Replaces `%s` with the %s state of the recipe.\n\nOpened by recipe-arbiter (%s).",
		strings.TrimPrefix(t.DestinationPath, t.DestinationClone+"/"), t.changes(), t.Direction)
}

func (t Task) changes() string {
	if t.Direction == Externalize {
		return "internal"
	}
	return "external"
}
