package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/pathutil"
)

// codecUnknown marks a row whose compression column this build cannot
// parse. Extracting such an entry fails with ErrUnknownCodec; the rest of
// the archive stays readable.
const codecUnknown = archivetype.Codec(0xff)

// Store is a read-only view of a finished index. It is safe for concurrent
// use.
type Store struct {
	db   *sql.DB
	path string
	meta archivetype.Meta
}

// Open opens the index at path read-only and validates its meta row.
//
// A missing meta row, an unsupported version, or an entry_count that
// disagrees with the number of rows is ErrIndex.
func Open(path string) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", archivetype.ErrIndex, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", archivetype.ErrIndex, path)
	}

	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", archivetype.ErrIndex, path, err)
	}

	s := &Store{db: db, path: path}
	if err := s.load(context.Background()); err != nil {
		_ = db.Close() //nolint:errcheck // reporting the validation error
		return nil, err
	}
	return s, nil
}

// readOnlyDSN builds a URI filename that opens path read-only. Archives are
// never modified after commit, so the file is also marked immutable, which
// lets SQLite skip locking.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", archivetype.ErrIndex, err)
	}
	slash := filepath.ToSlash(abs)
	if !strings.HasPrefix(slash, "/") {
		slash = "/" + slash
	}
	u := url.URL{Scheme: "file", Path: slash, RawQuery: "mode=ro&immutable=1"}
	return u.String(), nil
}

func (s *Store) load(ctx context.Context) error {
	var (
		version    int
		count      int
		createdAt  string
		codecName  string
		algorithm  string
		actualRows int
	)
	err := s.db.QueryRowContext(ctx, metaSQL).Scan(&version, &count, &createdAt, &codecName, &algorithm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s has no archive_meta row", archivetype.ErrIndex, s.path)
		}
		return fmt.Errorf("%w: read meta: %w", archivetype.ErrIndex, err)
	}
	if version < 1 || version > archivetype.FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", archivetype.ErrIndex, version)
	}
	if err := s.db.QueryRowContext(ctx, countSQL).Scan(&actualRows); err != nil {
		return fmt.Errorf("%w: count entries: %w", archivetype.ErrIndex, err)
	}
	if actualRows != count {
		return fmt.Errorf("%w: entry_count is %d but %d entries are stored", archivetype.ErrIndex, count, actualRows)
	}

	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return fmt.Errorf("%w: created_at: %w", archivetype.ErrIndex, err)
	}
	codec, err := archivetype.ParseCodec(codecName)
	if err != nil {
		return fmt.Errorf("%w: %w", archivetype.ErrIndex, err)
	}

	s.meta = archivetype.Meta{
		Version:           version,
		EntryCount:        count,
		CreatedAt:         created,
		Codec:             codec,
		ChecksumAlgorithm: digest.Algorithm(algorithm),
	}
	return nil
}

// Meta returns the archive metadata.
func (s *Store) Meta() archivetype.Meta { return s.meta }

// Len returns the number of entries.
func (s *Store) Len() int { return s.meta.EntryCount }

// Path returns the path the store was opened from.
func (s *Store) Path() string { return s.path }

// Lookup returns the entry for path.
func (s *Store) Lookup(path string) (archivetype.Entry, bool, error) {
	row := s.db.QueryRow(lookupSQL, path)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return archivetype.Entry{}, false, nil
		}
		return archivetype.Entry{}, false, fmt.Errorf("index: lookup %s: %w", path, err)
	}
	return e, true, nil
}

// Entries returns every entry ordered by blob offset.
func (s *Store) Entries() ([]archivetype.Entry, error) {
	return s.query(entriesSQL)
}

// EntriesWithPrefix returns the entries under the directory prefix, ordered
// by path. The prefix "" or "." selects every entry.
func (s *Store) EntriesWithPrefix(prefix string) ([]archivetype.Entry, error) {
	lo, hi, all := prefixRange(prefix)
	if all {
		return s.query(`SELECT ` + selectColumns + ` FROM entry_list ORDER BY name`)
	}
	return s.query(prefixSQL, lo, hi)
}

// HasPrefix reports whether any entry lives under the directory prefix.
func (s *Store) HasPrefix(prefix string) (bool, error) {
	lo, hi, all := prefixRange(prefix)
	if all {
		return s.meta.EntryCount > 0, nil
	}
	var one int
	err := s.db.QueryRow(hasPrefixSQL, lo, hi).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("index: prefix %s: %w", prefix, err)
	}
	return true, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// prefixRange returns the half-open name range [lo, hi) covering every path
// below dir. '0' is the byte after '/', so "dir0" bounds "dir/...".
func prefixRange(dir string) (lo, hi string, all bool) {
	lo = pathutil.DirPrefix(dir)
	if lo == "" {
		return "", "", true
	}
	return lo, lo[:len(lo)-1] + "0", false
}

func (s *Store) query(q string, args ...any) ([]archivetype.Entry, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}
	defer rows.Close()

	entries := make([]archivetype.Entry, 0, 64)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("index: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEntry converts one row into an Entry. Damaged column values are kept
// in a form that fails at extraction time rather than here, so one bad row
// does not make the rest of the archive unreadable.
func scanEntry(sc scanner) (archivetype.Entry, error) {
	var (
		name         string
		offset, size int64
		original     int64
		checksum     string
		compression  string
	)
	if err := sc.Scan(&name, &offset, &size, &original, &checksum, &compression); err != nil {
		return archivetype.Entry{}, err
	}
	codec, err := archivetype.ParseCodec(compression)
	if err != nil {
		codec = codecUnknown
	}
	return archivetype.Entry{
		Path:           name,
		Offset:         toUint(offset),
		CompressedSize: toUint(size),
		OriginalSize:   toUint(original),
		Codec:          codec,
		Checksum:       digest.Digest(checksum),
	}, nil
}

// toUint maps negative column values to the largest uint64 so that range
// checks reject them.
func toUint(v int64) uint64 {
	if v < 0 {
		return ^uint64(0)
	}
	return uint64(v)
}
