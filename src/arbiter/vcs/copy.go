package vcs

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// ReplaceTree removes dst and copies src in its place. Paths are relative to
// fs. Regular files keep their permission bits, symbolic links are copied
// as links and any .git directory is left out.
func ReplaceTree(fs billy.Filesystem, src, dst string) error {
	if err := util.RemoveAll(fs, dst); err != nil {
		return fmt.Errorf("removing %s: %w", dst, err)
	}
	return util.Walk(fs, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if path.Base(filepath.ToSlash(rel)) == ".git" {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := fs.Join(dst, rel)

		switch {
		case info.IsDir():
			return fs.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := fs.Readlink(p)
			if err != nil {
				return fmt.Errorf("reading link %s: %w", p, err)
			}
			return fs.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(fs, p, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(fs billy.Filesystem, src, dst string, perm os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
