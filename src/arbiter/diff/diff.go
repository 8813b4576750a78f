// Package diff builds the comparison table between the public mirror and
// the internal copy of the public recipes.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
)

// Comparison is the outcome of comparing one recipe across both sides.
type Comparison int

const (
	// NotApplicable means the recipe is missing on one side. It is not
	// the same as Different.
	NotApplicable Comparison = iota
	Equal
	Different
	// Timestamps rows carry both modification times and no verdict.
	Timestamps
)

var comparisonNames = map[Comparison]string{
	NotApplicable: "n/a",
	Equal:         "equal",
	Different:     "different",
	Timestamps:    "timestamps",
}

func (c Comparison) String() string {
	if s, ok := comparisonNames[c]; ok {
		return s
	}
	return fmt.Sprintf("comparison(%d)", int(c))
}

func (c Comparison) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Comparison) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for k, v := range comparisonNames {
		if v == s {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown comparison %q", s)
}

// Row is one recipe of the table.
type Row struct {
	Recipe            string     `json:"recipe"`
	PresentInPublic   bool       `json:"present_in_public"`
	PresentInInternal bool       `json:"present_in_internal"`
	Comparison        Comparison `json:"comparison"`
	PublicModified    time.Time  `json:"public_modified,omitzero"`
	InternalModified  time.Time  `json:"internal_modified,omitzero"`
}

// Equal returns the equality verdict. ok is false when no verdict exists:
// the recipe is missing on one side or only timestamps were compared.
func (r Row) Equal() (equal, ok bool) {
	switch r.Comparison {
	case Equal:
		return true, true
	case Different:
		return false, true
	default:
		return false, false
	}
}

// Table is sorted by recipe name and covers the union of both sides.
type Table struct {
	Mode recipe.Mode `json:"-"`
	Rows []Row       `json:"rows"`
}

func (t Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mode string `json:"mode"`
		Rows []Row  `json:"rows"`
	}{t.Mode.String(), t.Rows})
}

// Lookup returns the row for name.
func (t *Table) Lookup(name string) (Row, bool) {
	i := sort.Search(len(t.Rows), func(i int) bool { return t.Rows[i].Recipe >= name })
	if i < len(t.Rows) && t.Rows[i].Recipe == name {
		return t.Rows[i], true
	}
	return Row{}, false
}

// Compute compares public against internal. It performs no I/O and the
// same inputs always yield the same table.
func Compute(public, internal recipe.Fingerprints, mode recipe.Mode) *Table {
	names := make(map[string]struct{}, len(public)+len(internal))
	for n := range public {
		names[n] = struct{}{}
	}
	for n := range internal {
		names[n] = struct{}{}
	}

	rows := make([]Row, 0, len(names))
	for n := range names {
		pub, inPub := public[n]
		in, inInt := internal[n]
		row := Row{Recipe: n, PresentInPublic: inPub, PresentInInternal: inInt}
		switch {
		case !inPub || !inInt:
			row.Comparison = NotApplicable
		case mode == recipe.MetadataMode:
			row.Comparison = Timestamps
			row.PublicModified = pub.Modified
			row.InternalModified = in.Modified
		case pub.Digest == in.Digest:
			row.Comparison = Equal
		default:
			row.Comparison = Different
		}
		if mode == recipe.MetadataMode && row.Comparison == NotApplicable {
			row.PublicModified = pub.Modified
			row.InternalModified = in.Modified
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Recipe < rows[j].Recipe })
	return &Table{Mode: mode, Rows: rows}
}

// Counts tallies rows per comparison.
func (t *Table) Counts() map[Comparison]int {
	out := make(map[Comparison]int)
	for _, r := range t.Rows {
		out[r.Comparison]++
	}
	return out
}
