// Package extract reads single entries out of a blob and verifies them.
//
// Every failure that can be blamed on the entry itself (range outside the
// blob, undecodable payload, wrong length, checksum mismatch, unknown codec)
// is reported as an *archivetype.EntryError matching archivetype.ErrCorrupt.
// Transport failures from the ByteSource are wrapped in an EntryError too
// but do not match ErrCorrupt.
package extract
