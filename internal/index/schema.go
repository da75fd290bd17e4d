package index

import (
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const driverName = "sqlite"

// entryType is the only value written to the type column. Directories are
// implied by paths and never stored.
const entryType = "FILE"

// OFFSET is an SQL keyword, so the column is quoted here. SQLite also
// accepts it unquoted as a column name, which is how older readers select it.
const schema = `
CREATE TABLE entry_list (
	name          TEXT PRIMARY KEY,
	type          TEXT NOT NULL DEFAULT 'FILE',
	"offset"      INTEGER NOT NULL,
	size          INTEGER NOT NULL,
	original_size INTEGER NOT NULL,
	checksum      TEXT NOT NULL,
	compression   TEXT NOT NULL
);
CREATE TABLE archive_meta (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	version            INTEGER NOT NULL,
	entry_count        INTEGER NOT NULL,
	created_at         TEXT NOT NULL,
	codec              TEXT NOT NULL,
	checksum_algorithm TEXT NOT NULL
);
`

const (
	insertEntrySQL = `INSERT INTO entry_list (name, type, "offset", size, original_size, checksum, compression)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertMetaSQL = `INSERT INTO archive_meta (id, version, entry_count, created_at, codec, checksum_algorithm)
VALUES (1, ?, ?, ?, ?, ?)`

	selectColumns = `name, "offset", size, original_size, checksum, compression`

	lookupSQL = `SELECT ` + selectColumns + ` FROM entry_list WHERE name = ?`

	entriesSQL = `SELECT ` + selectColumns + ` FROM entry_list ORDER BY "offset", name`

	prefixSQL = `SELECT ` + selectColumns + ` FROM entry_list WHERE name >= ? AND name < ? ORDER BY name`

	hasPrefixSQL = `SELECT 1 FROM entry_list WHERE name >= ? AND name < ? LIMIT 1`

	countSQL = `SELECT COUNT(*) FROM entry_list`

	metaSQL = `SELECT version, entry_count, created_at, codec, checksum_algorithm FROM archive_meta WHERE id = 1`
)
