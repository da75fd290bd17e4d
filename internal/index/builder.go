package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/s4a/internal/archivetype"
)

// Builder writes a new index.
//
// Entries must arrive in blob order: each entry's offset must equal the sum
// of the compressed sizes put before it. A Builder is not safe for concurrent
// use.
type Builder struct {
	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt

	codec     archivetype.Codec
	algorithm digest.Algorithm

	seen  map[string]struct{}
	next  uint64
	count int
	done  bool
}

// Create creates a new index database at path and opens its write
// transaction. path must not already hold a database.
//
// codec and algorithm are recorded in the meta row as the archive defaults.
func Create(ctx context.Context, path string, codec archivetype.Codec, algorithm digest.Algorithm) (*Builder, error) {
	if err := codec.Valid(); err != nil {
		return nil, err
	}
	if !algorithm.Available() {
		return nil, fmt.Errorf("index: checksum algorithm %q is not available", algorithm)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	// A single connection keeps the transaction and schema on one handle.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close() //nolint:errcheck // reporting the schema error
		return nil, fmt.Errorf("index: create schema: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		_ = db.Close() //nolint:errcheck // reporting the begin error
		return nil, fmt.Errorf("index: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertEntrySQL)
	if err != nil {
		_ = tx.Rollback() //nolint:errcheck // reporting the prepare error
		_ = db.Close()    //nolint:errcheck // reporting the prepare error
		return nil, fmt.Errorf("index: prepare: %w", err)
	}

	return &Builder{
		db:        db,
		tx:        tx,
		stmt:      stmt,
		codec:     codec,
		algorithm: algorithm,
		seen:      make(map[string]struct{}, 1024),
	}, nil
}

// Put records one entry.
//
// It returns ErrDuplicatePath if the path was already put and ErrLayout if
// the entry does not start where the previous one ended.
func (b *Builder) Put(e *archivetype.Entry) error {
	if b.done {
		return errors.New("index: builder is closed")
	}
	if _, ok := b.seen[e.Path]; ok {
		return fmt.Errorf("%w: %s", archivetype.ErrDuplicatePath, e.Path)
	}
	if e.Offset != b.next {
		return fmt.Errorf("%w: %s starts at %d, expected %d", archivetype.ErrLayout, e.Path, e.Offset, b.next)
	}
	end, ok := e.End()
	if !ok || end > math.MaxInt64 || e.OriginalSize > math.MaxInt64 {
		return fmt.Errorf("index: %s: %w", e.Path, archivetype.ErrSizeOverflow)
	}
	if err := e.Codec.Valid(); err != nil {
		return fmt.Errorf("index: %s: %w", e.Path, err)
	}

	_, err := b.stmt.Exec(
		e.Path,
		entryType,
		int64(e.Offset),         //nolint:gosec // bounded by the end check above
		int64(e.CompressedSize), //nolint:gosec // bounded by the end check above
		int64(e.OriginalSize),   //nolint:gosec // checked above
		e.Checksum.String(),
		e.Codec.String(),
	)
	if err != nil {
		return fmt.Errorf("index: insert %s: %w", e.Path, err)
	}

	b.seen[e.Path] = struct{}{}
	b.next = end
	b.count++
	return nil
}

// Count returns the number of entries put so far.
func (b *Builder) Count() int { return b.count }

// Size returns the blob length implied by the entries put so far.
func (b *Builder) Size() uint64 { return b.next }

// Finalize writes the meta row, commits, and closes the database.
//
// expected is the number of entries the caller wrote; a mismatch with the
// number actually put is ErrLayout and nothing is committed.
func (b *Builder) Finalize(expected int, createdAt time.Time) error {
	if b.done {
		return errors.New("index: builder is closed")
	}
	if expected != b.count {
		_ = b.Abort() //nolint:errcheck // reporting the count mismatch
		return fmt.Errorf("%w: expected %d entries, indexed %d", archivetype.ErrLayout, expected, b.count)
	}

	_, err := b.tx.Exec(insertMetaSQL,
		archivetype.FormatVersion,
		b.count,
		createdAt.UTC().Format(time.RFC3339),
		b.codec.String(),
		b.algorithm.String(),
	)
	if err != nil {
		_ = b.Abort() //nolint:errcheck // reporting the insert error
		return fmt.Errorf("index: write meta: %w", err)
	}

	_ = b.stmt.Close() //nolint:errcheck // statement is done either way
	if err := b.tx.Commit(); err != nil {
		b.done = true
		_ = b.db.Close() //nolint:errcheck // reporting the commit error
		return fmt.Errorf("index: commit: %w", err)
	}
	b.done = true
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("index: close: %w", err)
	}
	return nil
}

// Abort rolls back and closes the database. The file itself is left for the
// caller to remove. Abort after Finalize is a no-op.
func (b *Builder) Abort() error {
	if b.done {
		return nil
	}
	b.done = true
	_ = b.stmt.Close() //nolint:errcheck // rolling back anyway
	rbErr := b.tx.Rollback()
	if errors.Is(rbErr, sql.ErrTxDone) {
		rbErr = nil
	}
	return errors.Join(rbErr, b.db.Close())
}
