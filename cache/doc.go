// Package cache defines content-addressed storage for extracted archive
// entries.
//
// Keys are the checksum digests recorded in the archive index, so identical
// content is shared across archives and a hit can be re-verified against its
// own key.
package cache
