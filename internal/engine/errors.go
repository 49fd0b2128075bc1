package engine

import "errors"

// Sentinel errors corresponding to the error kinds in spec §7. The
// fusefront adapter maps each of these to a syscall.Errno; engine code
// itself never imports syscall.
var (
	// ErrNotFound: path missing locally and remotely.
	ErrNotFound = errors.New("engine: not found")
	// ErrExists: target of rename/create already present.
	ErrExists = errors.New("engine: already exists")
	// ErrNotEmpty: rmdir on a non-empty directory.
	ErrNotEmpty = errors.New("engine: directory not empty")
	// ErrNotDir: operation required a directory but path is not one.
	ErrNotDir = errors.New("engine: not a directory")
	// ErrIsDir: operation required a file but path is a directory.
	ErrIsDir = errors.New("engine: is a directory")
	// ErrUnsupported: symlink, link, device mknod.
	ErrUnsupported = errors.New("engine: operation not supported")
	// ErrRemote: network/auth/quota failure talking to the remote.
	ErrRemote = errors.New("engine: remote error")
	// ErrInvariant: a structural invariant was violated.
	ErrInvariant = errors.New("engine: invariant violation")
)
