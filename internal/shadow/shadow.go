// Package shadow implements the Shadow Cache (spec §4.4): an on-disk
// mirror, rooted at tmp_dir, of every file and directory the engine has
// ever downloaded. Unlike the teacher's content cache — which keeps file
// bytes in a bbolt blob bucket — the shadow cache is ordinary files on
// ordinary directories, because FUSE read/write/mmap callbacks need to be
// able to hand the kernel a real file descriptor.
package shadow

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Cache wraps a root directory used as the shadow tree.
type Cache struct {
	root string
}

// New creates the shadow cache rooted at root. Per spec §4.4, it refuses
// to reuse a pre-existing directory: a stale tmp_dir
// from a previous, uncleanly-terminated run could otherwise be silently
// adopted and its stale contents mistaken for current state.
func New(root string) (*Cache, error) {
	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("shadow: %q already exists; refusing to reuse a stale cache directory", root)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("shadow: statting %q: %w", root, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("shadow: creating %q: %w", root, err)
	}
	return &Cache{root: root}, nil
}

// Close removes the entire shadow tree. Called on clean unmount, mirroring
// the teacher's _cleanup_tmp.
func (c *Cache) Close() error {
	return os.RemoveAll(c.root)
}

// Root returns the shadow cache's root directory.
func (c *Cache) Root() string { return c.root }

// LocalPath returns the on-disk path shadowing the given engine-visible
// path, with suffix (a MIME-translated extension, or "") appended to the
// final component, per invariant I6.
func (c *Cache) LocalPath(path, suffix string) string {
	if suffix == "" {
		return filepath.Join(c.root, filepath.FromSlash(path))
	}
	return filepath.Join(c.root, filepath.FromSlash(path)) + suffix
}

// MkdirAll creates path (and parents) as a directory in the shadow tree.
func (c *Cache) MkdirAll(path string) error {
	return os.MkdirAll(c.LocalPath(path, ""), 0755)
}

// CreateFile creates an empty file at path (with suffix) in the shadow
// tree, truncating it if it already exists.
func (c *Cache) CreateFile(path, suffix string) (*os.File, error) {
	lpath := c.LocalPath(path, suffix)
	if err := os.MkdirAll(filepath.Dir(lpath), 0755); err != nil {
		return nil, fmt.Errorf("shadow: creating parent of %q: %w", lpath, err)
	}
	return os.OpenFile(lpath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
}

// OpenFile opens the existing shadow file for path (with suffix) for
// reading and writing.
func (c *Cache) OpenFile(path, suffix string) (*os.File, error) {
	return os.OpenFile(c.LocalPath(path, suffix), os.O_RDWR, 0644)
}

// Remove deletes the shadow file or empty directory at path.
func (c *Cache) Remove(path, suffix string) error {
	err := os.Remove(c.LocalPath(path, suffix))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// RemoveAll deletes path and everything beneath it in the shadow tree,
// used when a directory is unlinked.
func (c *Cache) RemoveAll(path string) error {
	return os.RemoveAll(c.LocalPath(path, ""))
}

// Rename moves the shadow entry at oldPath (with oldSuffix) to newPath
// (with newSuffix), creating newPath's parent directory if needed.
func (c *Cache) Rename(oldPath, oldSuffix, newPath, newSuffix string) error {
	oldLPath := c.LocalPath(oldPath, oldSuffix)
	newLPath := c.LocalPath(newPath, newSuffix)
	if err := os.MkdirAll(filepath.Dir(newLPath), 0755); err != nil {
		return fmt.Errorf("shadow: creating parent of %q: %w", newLPath, err)
	}
	return os.Rename(oldLPath, newLPath)
}

// Exists reports whether a shadow entry is present at path.
func (c *Cache) Exists(path, suffix string) bool {
	_, err := os.Stat(c.LocalPath(path, suffix))
	return err == nil
}

// SetTimes applies the given modification and access times to the shadow
// entry at path, for utimens support.
func (c *Cache) SetTimes(path, suffix string, atime, mtime time.Time) error {
	return os.Chtimes(c.LocalPath(path, suffix), atime, mtime)
}

// Truncate resizes the shadow file at path to size bytes.
func (c *Cache) Truncate(path, suffix string, size int64) error {
	return os.Truncate(c.LocalPath(path, suffix), size)
}

// Stat returns the os.FileInfo for the shadow entry at path.
func (c *Cache) Stat(path, suffix string) (os.FileInfo, error) {
	return os.Stat(c.LocalPath(path, suffix))
}

// IsEmptyDir reports whether the shadow directory at path contains no
// entries, used by rmdir's pre-check (spec §4.7).
func (c *Cache) IsEmptyDir(path string) (bool, error) {
	f, err := os.Open(c.LocalPath(path, ""))
	if err != nil {
		return false, err
	}
	defer f.Close()
	names, err := f.Readdirnames(1)
	if err != nil && err != io.EOF {
		return false, err
	}
	return len(names) == 0, nil
}

// Chmod changes the permission bits of the shadow entry at path.
func (c *Cache) Chmod(path, suffix string, mode os.FileMode) error {
	return os.Chmod(c.LocalPath(path, suffix), mode)
}

// Chown changes the owning uid/gid of the shadow entry at path.
func (c *Cache) Chown(path, suffix string, uid, gid int) error {
	return os.Chown(c.LocalPath(path, suffix), uid, gid)
}
