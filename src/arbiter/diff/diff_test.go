package diff

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
)

func digests(kv ...string) recipe.Fingerprints {
	out := make(recipe.Fingerprints)
	for i := 0; i < len(kv); i += 2 {
		out[kv[i]] = recipe.Signature{Digest: kv[i+1]}
	}
	return out
}

func TestComputeExample(t *testing.T) {
	a := digests("numpy", "sig1", "scipy", "sig2")
	b := digests("numpy", "sig1", "pandas", "sig3")

	got := Compute(a, b, recipe.ContentMode)
	want := []Row{
		{Recipe: "numpy", PresentInPublic: true, PresentInInternal: true, Comparison: Equal},
		{Recipe: "pandas", PresentInInternal: true, Comparison: NotApplicable},
		{Recipe: "scipy", PresentInPublic: true, Comparison: NotApplicable},
	}
	assert.Equal(t, want, got.Rows)
	assert.Equal(t, recipe.ContentMode, got.Mode)
}

func TestComputeCoversUnion(t *testing.T) {
	tests := []struct {
		name        string
		left, right recipe.Fingerprints
		want        int
	}{
		{"both empty", nil, nil, 0},
		{"left only", digests("a", "1", "b", "2"), nil, 2},
		{"disjoint", digests("a", "1"), digests("b", "1"), 2},
		{"overlap", digests("a", "1", "b", "2", "c", "3"), digests("b", "2", "d", "4"), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.left, tt.right, recipe.ContentMode)
			require.Len(t, got.Rows, tt.want)
			seen := map[string]bool{}
			for i, r := range got.Rows {
				assert.False(t, seen[r.Recipe], "duplicate %s", r.Recipe)
				seen[r.Recipe] = true
				if i > 0 {
					assert.Less(t, got.Rows[i-1].Recipe, r.Recipe)
				}
			}
		})
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	a := digests("x", "1", "y", "2", "z", "3")
	b := digests("y", "2", "z", "4", "w", "5")
	assert.Equal(t, Compute(a, b, recipe.ContentMode), Compute(a, b, recipe.ContentMode))
}

func TestComputeEquality(t *testing.T) {
	got := Compute(digests("numpy", "abc"), digests("numpy", "abd"), recipe.ContentMode)
	eq, ok := got.Rows[0].Equal()
	assert.True(t, ok)
	assert.False(t, eq)
	assert.Equal(t, Different, got.Rows[0].Comparison)

	got = Compute(digests("numpy", "abc"), digests("numpy", "abc"), recipe.ContentMode)
	eq, ok = got.Rows[0].Equal()
	assert.True(t, ok)
	assert.True(t, eq)
}

func TestComputeNotApplicableHasNoVerdict(t *testing.T) {
	got := Compute(digests("numpy", "abc"), nil, recipe.ContentMode)
	_, ok := got.Rows[0].Equal()
	assert.False(t, ok)
	assert.Equal(t, NotApplicable, got.Rows[0].Comparison)
}

func TestComputeMetadataMode(t *testing.T) {
	older := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
	pub := recipe.Fingerprints{"numpy": {Modified: newer}, "scipy": {Modified: older}}
	in := recipe.Fingerprints{"numpy": {Modified: older}}

	got := Compute(pub, in, recipe.MetadataMode)
	require.Len(t, got.Rows, 2)

	numpy := got.Rows[0]
	assert.Equal(t, Timestamps, numpy.Comparison)
	assert.Equal(t, newer, numpy.PublicModified)
	assert.Equal(t, older, numpy.InternalModified)
	_, ok := numpy.Equal()
	assert.False(t, ok)

	scipy := got.Rows[1]
	assert.Equal(t, NotApplicable, scipy.Comparison)
	assert.Equal(t, older, scipy.PublicModified)
	assert.True(t, scipy.InternalModified.IsZero())
}

func TestLookupAndCounts(t *testing.T) {
	got := Compute(digests("a", "1", "b", "2"), digests("b", "3", "c", "4"), recipe.ContentMode)

	r, ok := got.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, Different, r.Comparison)
	_, ok = got.Lookup("bb")
	assert.False(t, ok)

	assert.Equal(t, map[Comparison]int{NotApplicable: 2, Different: 1}, got.Counts())
}

func TestTableJSON(t *testing.T) {
	got := Compute(digests("a", "1"), digests("a", "1", "b", "2"), recipe.ContentMode)
	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"content","rows":[
		{"recipe":"a","present_in_public":true,"present_in_internal":true,"comparison":"equal"},
		{"recipe":"b","present_in_public":false,"present_in_internal":true,"comparison":"n/a"}
	]}`, string(b))

	var c Comparison
	require.NoError(t, json.Unmarshal([]byte(`"timestamps"`), &c))
	assert.Equal(t, Timestamps, c)
}
