// Package recipe identifies recipes and fingerprints their contents.
package recipe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultDescriptor marks a directory as a recipe root.
	DefaultDescriptor = "meta.yaml"

	// DefaultSuffix is carried by every per-package public repository.
	DefaultSuffix = "-recipe"

	// WrapperDir is the directory holding the recipe inside a per-package
	// public repository.
	WrapperDir = "recipe"
)

// Origin names the corpus a recipe was loaded from.
type Origin int

const (
	// PublicMirror is the organization of one-repository-per-recipe.
	PublicMirror Origin = iota + 1
	// InternalDistribution is the single repository holding every recipe.
	InternalDistribution
	// PublicDistributionSubset is the internal mirror of the public recipes.
	PublicDistributionSubset
)

var originNames = map[Origin]string{
	PublicMirror:             "public-mirror",
	InternalDistribution:     "internal-distribution",
	PublicDistributionSubset: "public-distribution-subset",
}

func (o Origin) String() string {
	if s, ok := originNames[o]; ok {
		return s
	}
	return fmt.Sprintf("origin(%d)", int(o))
}

func (o Origin) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Origin) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for k, v := range originNames {
		if v == s {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown origin %q", s)
}

// Identity is a recipe's comparable name within one origin.
type Identity struct {
	Name   string `json:"name"`
	Origin Origin `json:"origin"`
}

// Mode selects how signatures are computed and compared.
type Mode int

const (
	// ContentMode signatures are digests of the recipe bytes.
	ContentMode Mode = iota
	// MetadataMode signatures are the latest commit time for the recipe path.
	MetadataMode
)

func (m Mode) String() string {
	switch m {
	case ContentMode:
		return "content"
	case MetadataMode:
		return "metadata"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "content" and "metadata" (also "quick").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "content":
		return ContentMode, nil
	case "metadata", "quick":
		return MetadataMode, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Signature is the comparable identity of a recipe's state. Content mode
// fills Digest; metadata mode fills Modified.
type Signature struct {
	Digest   string    `json:"digest,omitempty"`
	Modified time.Time `json:"modified,omitzero"`
}

// Fingerprints maps recipe names to signatures for one corpus.
type Fingerprints map[string]Signature

// Names returns the recipe names in no particular order.
func (f Fingerprints) Names() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	return names
}

// NameFromRepo strips the per-package suffix from a repository name. A name
// without the suffix breaks the naming convention.
func NameFromRepo(repo, suffix string) (string, bool) {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	if !strings.HasSuffix(repo, suffix) || len(repo) == len(suffix) {
		return "", false
	}
	return strings.TrimSuffix(repo, suffix), true
}

// RepoFromName is the inverse of NameFromRepo.
func RepoFromName(name, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return name + suffix
}

// CanonicalName resolves the recipe name for a recipe root given as a
// slash-separated path. A root literally named "recipe" takes its parent's
// name minus the suffix; any other root is named after itself.
func CanonicalName(root, suffix string) string {
	root = strings.TrimSuffix(root, "/")
	base := root
	parent := ""
	if i := strings.LastIndex(root, "/"); i >= 0 {
		base = root[i+1:]
		parent = root[:i]
	}
	if base != WrapperDir || parent == "" {
		return base
	}
	if i := strings.LastIndex(parent, "/"); i >= 0 {
		parent = parent[i+1:]
	}
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return strings.TrimSuffix(parent, suffix)
}
