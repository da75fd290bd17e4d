//go:build !unix

package platform

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/meigma/s4a/internal/archivetype"
)

// OpenNoFollow opens name under root for reading without following symlinks.
// A symlink at name yields archivetype.ErrUnsupportedFile.
func OpenNoFollow(root *os.Root, name string) (*os.File, error) {
	info, err := root.Lstat(name)
	if err != nil {
		return nil, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: symlink %s", archivetype.ErrUnsupportedFile, name)
	}
	return root.Open(name)
}
