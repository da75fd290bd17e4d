//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/meigma/s4a/internal/archivetype"
)

// OpenNoFollow opens name under root for reading without following symlinks.
// A symlink at name yields archivetype.ErrUnsupportedFile.
func OpenNoFollow(root *os.Root, name string) (*os.File, error) {
	f, err := root.OpenFile(name, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if errors.Is(err, syscall.ELOOP) {
			return nil, fmt.Errorf("%w: symlink %s", archivetype.ErrUnsupportedFile, name)
		}
		return nil, err
	}
	return f, nil
}
