package fusefront

import (
	"errors"
	"syscall"

	"github.com/drivefs-project/drivefs/internal/engine"
)

// errno translates an engine error kind to the syscall.Errno FUSE expects,
// per the table in spec §7.
func errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, engine.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, engine.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, engine.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, engine.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, engine.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, engine.ErrUnsupported):
		return syscall.ENOSYS
	case errors.Is(err, engine.ErrRemote):
		return syscall.EIO
	case errors.Is(err, engine.ErrInvariant):
		return syscall.EIO
	default:
		return syscall.EIO
	}
}
