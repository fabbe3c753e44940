//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/cpetrack/internal/errors"
)

// Windows has no O_NOFOLLOW; ValidatePath rejects symlinks before these run.

func createNoFollow(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
}

func openNoFollow(path string) (*os.File, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.NewFileNotFound(path)
	}
	return f, err
}
