package codec

import "github.com/meigma/s4a/internal/archivetype"

// ErrDecompression is re-exported so callers can match decoder setup failures.
var ErrDecompression = archivetype.ErrDecompression
