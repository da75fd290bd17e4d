// Package index stores the archive index in SQLite.
//
// One row per archived file lives in entry_list, keyed by its slash path, and
// a single archive_meta row records the format version, entry count, and the
// defaults the archive was built with. The entry_list columns name, type,
// offset, size, and compression are the ones older s4a readers query, so an
// index written here stays readable by them.
//
// A Builder is owned by exactly one goroutine and writes everything inside a
// single transaction; a Store opens a finished index read-only.
package index
