// Package sizing converts the unsigned sizes stored in the index to the
// signed sizes the io interfaces use.
package sizing

import (
	"fmt"

	"github.com/meigma/s4a/internal/archivetype"
)

// Signed converts v to T. A value that does not fit is reported as
// archivetype.ErrSizeOverflow.
func Signed[T int | int64](v uint64) (T, error) {
	s := T(v)
	if s < 0 || uint64(s) != v {
		return 0, fmt.Errorf("%w: %d", archivetype.ErrSizeOverflow, v)
	}
	return s, nil
}

// End returns off+n, or false if the sum wraps.
func End(off, n uint64) (uint64, bool) {
	end := off + n
	return end, end >= off
}
