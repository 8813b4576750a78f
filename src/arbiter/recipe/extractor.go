package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
)

// ControlDir is the version-control directory never read as recipe content.
const ControlDir = ".git"

// LinkPolicy decides what happens when a symbolic link is found.
type LinkPolicy int

const (
	linkPolicyUnset LinkPolicy = iota
	// SkipLinks logs a warning and leaves the link out of the digest.
	SkipLinks
	// FailOnLinks aborts extraction with apperr.ErrSymlink.
	FailOnLinks
)

// PermissionPolicy decides what happens when a path cannot be read.
type PermissionPolicy int

const (
	permissionPolicyUnset PermissionPolicy = iota
	// SkipUnreadable logs a warning and leaves the path out.
	SkipUnreadable
	// FailOnUnreadable aborts extraction with apperr.ErrUnreadable.
	FailOnUnreadable
)

// ExtractorOptions configures recipe discovery. Links and Unreadable have no
// default: the caller has to pick.
type ExtractorOptions struct {
	Descriptor string
	Suffix     string

	// HarnessDirs are directory names skipped when they sit directly under
	// the walked root.
	HarnessDirs []string

	Links      LinkPolicy
	Unreadable PermissionPolicy

	Logger *slog.Logger
}

// Extractor finds recipe roots in a filesystem and digests their contents.
type Extractor struct {
	fs   billy.Filesystem
	opts ExtractorOptions
	log  *slog.Logger
}

func NewExtractor(fs billy.Filesystem, opts ExtractorOptions) (*Extractor, error) {
	if fs == nil {
		return nil, errors.New("extractor: filesystem is required")
	}
	if opts.Links == linkPolicyUnset {
		return nil, errors.New("extractor: symbolic link policy must be set")
	}
	if opts.Unreadable == permissionPolicyUnset {
		return nil, errors.New("extractor: unreadable path policy must be set")
	}
	if opts.Descriptor == "" {
		opts.Descriptor = DefaultDescriptor
	}
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{fs: fs, opts: opts, log: log}, nil
}

// Extract walks rootDir and returns one content signature per recipe name.
func (e *Extractor) Extract(rootDir string) (Fingerprints, error) {
	return e.extract(rootDir, rootDir)
}

func (e *Extractor) extract(rootDir, harnessBase string) (Fingerprints, error) {
	roots, err := e.findRoots(rootDir, harnessBase)
	if err != nil {
		return nil, err
	}

	out := make(Fingerprints, len(roots))
	owner := make(map[string]string, len(roots))
	for _, root := range roots {
		name := CanonicalName(filepath.ToSlash(root), e.opts.Suffix)
		if prev, ok := owner[name]; ok {
			return nil, apperr.Invariantf("extract", apperr.ErrNameCollision,
				"%q resolves from both %s and %s", name, prev, root)
		}
		owner[name] = root

		digest, err := e.Digest(root)
		if err != nil {
			return nil, err
		}
		out[name] = Signature{Digest: digest}
	}
	return out, nil
}

// findRoots returns every directory under rootDir that holds the descriptor,
// sorted. Harness directories are matched against harnessBase.
func (e *Extractor) findRoots(rootDir, harnessBase string) ([]string, error) {
	var roots []string
	err := e.walk(rootDir, func(p string, info os.FileInfo) error {
		if info.IsDir() {
			if e.isHarness(harnessBase, p) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() == e.opts.Descriptor {
			roots = append(roots, filepath.Dir(p))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(roots)
	return roots, nil
}

// Digest hashes every regular file under root, concatenated in lexicographic
// order of their slash-separated relative paths. An empty root hashes the
// empty input.
func (e *Extractor) Digest(root string) (string, error) {
	var files []string
	err := e.walk(root, func(p string, info os.FileInfo) error {
		if info.Mode().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Slice(files, func(i, j int) bool {
		return filepath.ToSlash(files[i]) < filepath.ToSlash(files[j])
	})

	h := sha256.New()
	for _, p := range files {
		if err := e.hashFile(h, p); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (e *Extractor) hashFile(w io.Writer, p string) error {
	f, err := e.fs.Open(p)
	if err != nil {
		return e.unreadable(p, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return e.unreadable(p, err)
	}
	return nil
}

// walk visits every non-control path under root and applies the link and
// permission policies before calling fn.
func (e *Extractor) walk(root string, fn func(p string, info os.FileInfo) error) error {
	return util.Walk(e.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if uerr := e.unreadable(p, err); uerr != nil {
				return uerr
			}
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if isControlPath(p) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if e.opts.Links == FailOnLinks {
				return apperr.Invariantf("extract", apperr.ErrSymlink, "%s", p)
			}
			e.log.Warn("Skipping symbolic link", "path", p)
			return nil
		}
		return fn(p, info)
	})
}

func (e *Extractor) unreadable(p string, err error) error {
	if e.opts.Unreadable == FailOnUnreadable {
		return apperr.Invariantf("extract", apperr.ErrUnreadable, "%s: %v", p, err)
	}
	e.log.Warn("Skipping unreadable path", "path", p, "error", err)
	return nil
}

func (e *Extractor) isHarness(rootDir, p string) bool {
	if filepath.Clean(filepath.Dir(p)) != filepath.Clean(rootDir) {
		return false
	}
	base := filepath.Base(p)
	for _, h := range e.opts.HarnessDirs {
		if base == h {
			return true
		}
	}
	return false
}

func isControlPath(p string) bool {
	for _, part := range strings.Split(path.Clean(filepath.ToSlash(p)), "/") {
		if part == ControlDir {
			return true
		}
	}
	return false
}

// ExtractDirs fingerprints each immediate subdirectory of parent separately
// and merges the results, failing on any cross-directory name collision.
func (e *Extractor) ExtractDirs(parent string) (Fingerprints, error) {
	entries, err := e.fs.ReadDir(parent)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", parent, err)
	}
	out := make(Fingerprints)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == ControlDir {
			continue
		}
		dir := filepath.Join(parent, entry.Name())
		if e.isHarness(parent, dir) {
			continue
		}
		fps, err := e.extract(dir, parent)
		if err != nil {
			return nil, err
		}
		for name, sig := range fps {
			if _, ok := out[name]; ok {
				return nil, apperr.Invariantf("extract", apperr.ErrNameCollision,
					"%q found twice under %s", name, parent)
			}
			out[name] = sig
		}
	}
	return out, nil
}
