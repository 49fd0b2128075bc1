// Package fusefront is the FUSE glue that turns kernel callbacks into Sync
// Engine calls (spec §1's "kernel FUSE bridge... engine implements the
// callback contract; transport is external"). It holds no state of its own
// beyond the path each node represents: every callback resolves its path and
// delegates straight to an *engine.Engine method, following the same
// thin-node shape as the teacher's fs.Inode in fs/inode.go, with the
// DriveItem/Cache bookkeeping replaced by Engine path lookups.
package fusefront

import (
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/drivefs-project/drivefs/internal/engine"
)

// Mount starts serving eng's filesystem at mountpoint. debug enables FUSE
// kernel-traffic logging (the teacher's --debug flag in cmd/onedriver).
// SingleThreaded is forced on per spec §5: the engine assumes callbacks are
// serialized and keeps no internal locks of its own.
func Mount(eng *engine.Engine, mountpoint string, debug bool) (*fuse.Server, error) {
	root := &Node{eng: eng, path: "/"}
	return fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:           "drivefs",
			FsName:         "drivefs",
			SingleThreaded: true,
			DisableXAttrs:  true,
			MaxBackground:  1,
			Debug:          debug,
		},
	})
}

// childPath joins a directory path and a leaf name into a child path. parent
// is always a clean absolute path ("/" or "/.Trash/foo"); name never
// contains a slash (the kernel guarantees this for a single path component).
func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
