package fusefront

import (
	"context"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/drivefs-project/drivefs/internal/engine"
	"github.com/drivefs-project/drivefs/internal/remote"
)

// Node is the InodeEmbedder for every file and directory in the mount,
// addressed purely by path (the engine's own addressing scheme) rather than
// by the teacher's persistent DriveItem-backed Inode. A new Node is minted on
// every Lookup; nothing here survives a kernel forget beyond what the engine
// itself caches.
type Node struct {
	fs.Inode

	eng  *engine.Engine
	path string
}

var (
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeMknoder    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeAccesser   = (*Node)(nil)
	_ fs.NodeStatfser   = (*Node)(nil)
	_ fs.NodeSymlinker  = (*Node)(nil)
	_ fs.NodeLinker     = (*Node)(nil)
)

// attrFromRecord fills a fuse.Attr from a FileRecord, the node-based
// equivalent of the teacher's Inode.makeattr.
func attrFromRecord(r *remote.FileRecord) fuse.Attr {
	mode := uint32(fuse.S_IFREG | 0644)
	size := r.Size
	if r.IsDir() {
		mode = fuse.S_IFDIR | 0755
		size = 4096
	}
	return fuse.Attr{
		Size:  size,
		Mode:  mode,
		Mtime: uint64(r.MTime.Unix()),
		Atime: uint64(r.ATime.Unix()),
		Ctime: uint64(r.CTime.Unix()),
		Owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
	}
}

// Getattr implements fs.NodeGetattrer.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	rec, err := n.eng.Stat(ctx, n.path)
	if err != nil {
		return errno(err)
	}
	out.Attr = attrFromRecord(rec)
	return 0
}

// Setattr is the workhorse for utimens, chmod, chown and truncate, matching
// the teacher's Inode.Setattr which dispatches on which fields the kernel
// set (spec §4.7's utimens/chmod/chown/truncate).
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := n.eng.Truncate(n.path, int64(size)); err != nil {
			return errno(err)
		}
	}
	if mtime, ok := in.GetMTime(); ok {
		atime := mtime
		if at, ok := in.GetATime(); ok {
			atime = at
		}
		if err := n.eng.Utimens(n.path, atime, mtime); err != nil {
			return errno(err)
		}
	}
	if mode, ok := in.GetMode(); ok {
		if err := n.eng.Chmod(n.path, os.FileMode(mode)); err != nil {
			return errno(err)
		}
	}
	uid, uok := in.GetUID()
	gid, gok := in.GetGID()
	if uok || gok {
		if err := n.eng.Chown(n.path, int(uid), int(gid)); err != nil {
			return errno(err)
		}
	}

	rec, err := n.eng.Stat(ctx, n.path)
	if err != nil {
		return errno(err)
	}
	out.Attr = attrFromRecord(rec)
	return 0
}

// Lookup implements fs.NodeLookuper.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	path := childPath(n.path, name)
	rec, err := n.eng.Stat(ctx, path)
	if err != nil {
		return nil, errno(err)
	}
	out.Attr = attrFromRecord(rec)
	child := &Node{eng: n.eng, path: path}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: out.Attr.Mode & fuse.S_IFDIR}), 0
}

// Readdir implements fs.NodeReaddirer.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	recs, err := n.eng.Readdir(ctx, n.path)
	if err != nil {
		return nil, errno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(recs))
	for _, r := range recs {
		mode := uint32(fuse.S_IFREG)
		if r.IsDir() {
			mode = fuse.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: r.Name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

// Open implements fs.NodeOpener, handing the kernel a real file descriptor
// onto the shadow cache entry (spec §1: "so that standard tools... can
// browse, open, read... cloud documents as ordinary files").
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	f, err := n.eng.Open(n.path)
	if err != nil {
		return nil, 0, errno(err)
	}
	return &fileHandle{eng: n.eng, path: n.path, f: f}, 0, 0
}

// Create implements fs.NodeCreater (spec §4.7's create: mknod-like, plus an
// open handle).
func (n *Node) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	path := childPath(n.path, name)
	f, err := n.eng.Create(ctx, path)
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	rec, err := n.eng.Stat(ctx, path)
	if err != nil {
		f.Close()
		return nil, nil, 0, errno(err)
	}
	out.Attr = attrFromRecord(rec)
	child := &Node{eng: n.eng, path: path}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG})
	return inode, &fileHandle{eng: n.eng, path: path, f: f}, 0, 0
}

// Mkdir implements fs.NodeMkdirer (spec §4.7's mkdir).
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	path := childPath(n.path, name)
	if err := n.eng.Mkdir(ctx, path); err != nil {
		return nil, errno(err)
	}
	rec, err := n.eng.Stat(ctx, path)
	if err != nil {
		return nil, errno(err)
	}
	out.Attr = attrFromRecord(rec)
	child := &Node{eng: n.eng, path: path}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

// Mknod implements fs.NodeMknoder. Only plain regular files are supported
// (spec §4.7's mknod); device/special nodes are refused per the Non-goals
// ("hard-link and device-node support").
func (n *Node) Mknod(ctx context.Context, name string, mode, rdev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if mode&syscall.S_IFMT != 0 && mode&syscall.S_IFMT != syscall.S_IFREG {
		return nil, syscall.ENOSYS
	}
	path := childPath(n.path, name)
	if err := n.eng.Mknod(ctx, path); err != nil {
		return nil, errno(err)
	}
	rec, err := n.eng.Stat(ctx, path)
	if err != nil {
		return nil, errno(err)
	}
	out.Attr = attrFromRecord(rec)
	child := &Node{eng: n.eng, path: path}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG}), 0
}

// Unlink implements fs.NodeUnlinker (spec §4.7's unlink).
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errno(n.eng.Unlink(ctx, childPath(n.path, name)))
}

// Rmdir implements fs.NodeRmdirer (spec §4.7's rmdir).
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errno(n.eng.Rmdir(ctx, childPath(n.path, name)))
}

// Rename implements fs.NodeRenamer (spec §4.7's rename).
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	np, ok := newParent.(*Node)
	if !ok {
		return syscall.EIO
	}
	oldPath := childPath(n.path, name)
	newPath := childPath(np.path, newName)
	return errno(n.eng.Rename(ctx, oldPath, newPath))
}

// Access implements fs.NodeAccesser: existence is all the engine can check,
// since the shadow cache carries no real permission model (spec's chmod is
// local-only display state).
func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	_, err := n.eng.Stat(ctx, n.path)
	return errno(err)
}

// Statfs implements fs.NodeStatfser. The narrow Remote API Facade (spec
// §4.2) exposes no quota endpoint, so this reports generous fixed numbers
// the same way the teacher falls back to a pretend 5TB quota when OneDrive
// for Business doesn't report one (fs/inode.go's Statfs).
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	const blockSize = 4096
	const fakeTotalBytes = 5 * 1024 * 1024 * 1024 * 1024 // 5TiB
	out.Bsize = blockSize
	out.Blocks = fakeTotalBytes / blockSize
	out.Bfree = fakeTotalBytes / blockSize
	out.Bavail = fakeTotalBytes / blockSize
	out.Files = 1000000
	out.Ffree = 1000000
	out.NameLen = 255
	return 0
}

// Symlink and Link are refused outright, per the Non-goals in spec §1
// ("hard-link and device-node support") and the explicit refusal table in
// spec §4.7.
func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.ENOSYS
}

func (n *Node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.ENOSYS
}
