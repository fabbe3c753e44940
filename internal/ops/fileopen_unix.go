//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/cpetrack/internal/errors"
)

// createNoFollow creates path for writing, refusing a symlink as the final
// component. Parent directories are checked by ValidatePath.
func createNoFollow(path string) (*os.File, error) {
	return openNoFollowFlags(path, syscall.O_CREAT|syscall.O_WRONLY|syscall.O_TRUNC, 0600)
}

// openNoFollow opens path read-only, refusing a symlink as the final component.
// Certificates and import files are both read through it.
func openNoFollow(path string) (*os.File, error) {
	return openNoFollowFlags(path, syscall.O_RDONLY, 0)
}

func openNoFollowFlags(path string, flag int, perm uint32) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, perm)
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), path), nil
	case stderrors.Is(err, syscall.ELOOP):
		return nil, errors.NewInvalidRequest(path + " is a symlink")
	case stderrors.Is(err, syscall.ENOENT) && flag == syscall.O_RDONLY:
		return nil, errors.NewFileNotFound(path)
	default:
		return nil, err
	}
}
