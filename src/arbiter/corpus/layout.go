package corpus

import (
	"path"

	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
)

// Layout names the repositories making up the three corpora and where
// their clones live in the workspace. Paths are slash-separated and
// relative to the workspace root.
type Layout struct {
	// PublicOrg owns one "<name><Suffix>" repository per recipe.
	PublicOrg string
	// InternalOwner owns DistributionRepo and MirrorRepo.
	InternalOwner    string
	DistributionRepo string
	MirrorRepo       string
	// PackagesDir holds one directory per recipe inside DistributionRepo.
	PackagesDir string
	Mainline    string

	Suffix      string
	Descriptor  string
	HarnessDirs []string
}

// DefaultLayout mirrors the public AnacondaRecipes organization and the
// ContinuumIO distribution repositories.
var DefaultLayout = Layout{
	PublicOrg:        "AnacondaRecipes",
	InternalOwner:    "ContinuumIO",
	DistributionRepo: "anaconda",
	MirrorRepo:       "anaconda-recipes",
	PackagesDir:      "packages",
	Mainline:         "master",
	Suffix:           recipe.DefaultSuffix,
	Descriptor:       recipe.DefaultDescriptor,
	HarnessDirs:      []string{"BUILD"},
}

func (l Layout) PublicRepo(name string) string {
	return recipe.RepoFromName(name, l.Suffix)
}

// PublicClone is the clone of the per-recipe public repository.
func (l Layout) PublicClone(name string) string {
	return path.Join(l.PublicOrg, l.PublicRepo(name))
}

func (l Layout) PublicRecipeDir(name string) string {
	return path.Join(l.PublicClone(name), recipe.WrapperDir)
}

func (l Layout) DistributionClone() string {
	return path.Join(l.InternalOwner, l.DistributionRepo)
}

func (l Layout) PackagesPath() string {
	return path.Join(l.DistributionClone(), l.PackagesDir)
}

func (l Layout) InternalRecipeDir(name string) string {
	return path.Join(l.PackagesPath(), name)
}

func (l Layout) MirrorClone() string {
	return path.Join(l.InternalOwner, l.MirrorRepo)
}

func (l Layout) MirrorRecipeDir(name string) string {
	return path.Join(l.MirrorClone(), name)
}

func (l Layout) extractorOptions() recipe.ExtractorOptions {
	return recipe.ExtractorOptions{
		Descriptor:  l.Descriptor,
		Suffix:      l.Suffix,
		HarnessDirs: l.HarnessDirs,
	}
}
