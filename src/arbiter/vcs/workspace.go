package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// Workspace is the fixed working directory holding every clone. A clone
// directory exists only once the clone completed: clones land in
// "<dir>.tmp" and are renamed into place.
type Workspace struct {
	root    string
	backend Backend
	fs      billy.Filesystem
	log     *slog.Logger
}

func NewWorkspace(root string, backend Backend, log *slog.Logger) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving work dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Workspace{root: abs, backend: backend, fs: osfs.New(abs), log: log}, nil
}

func (w *Workspace) Root() string { return w.root }

// FS exposes the workspace with paths relative to Root.
func (w *Workspace) FS() billy.Filesystem { return w.fs }

// Path returns the absolute path of a workspace-relative name.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.root, filepath.FromSlash(name))
}

// Ensure returns the clone of url at name. With reuse set an existing clone
// is opened as is; otherwise the directory is replaced by a fresh clone.
func (w *Workspace) Ensure(ctx context.Context, name, url string, reuse bool) (Repository, error) {
	dir := w.Path(name)
	if reuse {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			w.log.Debug("Reusing clone", "dir", dir)
			return w.backend.Open(dir)
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("removing stale clone: %w", err)
	}
	tmp := dir + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return nil, fmt.Errorf("removing partial clone: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("creating clone parent: %w", err)
	}

	w.log.Info("Cloning repository", "url", url, "dir", dir)
	if err := w.backend.Clone(ctx, url, tmp); err != nil {
		os.RemoveAll(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, dir); err != nil {
		return nil, fmt.Errorf("moving clone into place: %w", err)
	}
	return w.backend.Open(dir)
}

// Open returns an existing clone without touching the remote.
func (w *Workspace) Open(name string) (Repository, error) {
	return w.backend.Open(w.Path(name))
}

// Exists reports whether name is a directory in the workspace.
func (w *Workspace) Exists(name string) bool {
	info, err := w.fs.Stat(name)
	return err == nil && info.IsDir()
}
