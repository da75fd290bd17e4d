package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/codec"
	"github.com/meigma/s4a/internal/sizing"
)

// ByteSource provides random access to blob bytes.
// SourceID must return a stable identifier for the underlying content.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// RangeReader is implemented by sources that can stream a byte range in one
// request, such as the HTTP source.
type RangeReader interface {
	ReadRange(off, length int64) (io.ReadCloser, error)
}

// Reader extracts entries from a ByteSource. It is safe for concurrent use.
type Reader struct {
	source      ByteSource
	dec         *codec.Decompressor
	maxFileSize uint64
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxFileSize sets the per-entry size limit. Zero, the default,
// disables it.
func WithMaxFileSize(limit uint64) Option {
	return func(r *Reader) {
		r.maxFileSize = limit
	}
}

// WithDecompressor shares a decompressor (and its decoder pool) with other
// readers.
func WithDecompressor(d *codec.Decompressor) Option {
	return func(r *Reader) {
		if d != nil {
			r.dec = d
		}
	}
}

// NewReader creates a Reader over source.
func NewReader(source ByteSource, opts ...Option) *Reader {
	r := &Reader{
		source: source,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dec == nil {
		r.dec = codec.NewDecompressor(codec.DefaultMaxDecoderMemory)
	}
	return r
}

// Source returns the underlying ByteSource.
func (r *Reader) Source() ByteSource { return r.source }

// Decompressor returns the reader's decompressor.
func (r *Reader) Decompressor() *codec.Decompressor { return r.dec }

// MaxFileSize returns the per-entry size limit.
func (r *Reader) MaxFileSize() uint64 { return r.maxFileSize }

// ReadAll reads exactly the entry's byte range, decompresses it, and
// verifies its length and checksum.
func (r *Reader) ReadAll(e *archivetype.Entry) ([]byte, error) {
	if err := Validate(e, r.source.Size(), r.maxFileSize); err != nil {
		return nil, archivetype.Corrupt(e.Path, err)
	}
	payload, err := r.readPayload(e)
	if err != nil {
		return nil, archivetype.Corrupt(e.Path, err)
	}
	content, err := r.Decode(e, payload)
	if err != nil {
		return nil, archivetype.Corrupt(e.Path, err)
	}
	return content, nil
}

// Decode decompresses payload, the entry's bytes from the blob, and
// verifies the result. Errors are not wrapped in an EntryError.
func (r *Reader) Decode(e *archivetype.Entry, payload []byte) ([]byte, error) {
	if uint64(len(payload)) != e.CompressedSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, recorded %d", archivetype.ErrOutOfRange, len(payload), e.CompressedSize)
	}
	if e.Codec == archivetype.CodecNone {
		if err := verify(e, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}

	size, err := sizing.Signed[int](e.OriginalSize)
	if err != nil {
		return nil, err
	}
	dr, release, err := r.dec.Reader(e.Codec, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer release()

	content := make([]byte, size)
	if _, err := io.ReadFull(dr, content); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: output shorter than %d bytes", archivetype.ErrDecompression, size)
		}
		return nil, fmt.Errorf("%w: %v", archivetype.ErrDecompression, err)
	}
	if err := ensureNoExtra(dr); err != nil {
		return nil, err
	}
	if err := verify(e, content); err != nil {
		return nil, err
	}
	return content, nil
}

// DecodeTo is Decode streaming into w. w may have received partial output
// when an error is returned.
func (r *Reader) DecodeTo(e *archivetype.Entry, payload []byte, w io.Writer) error {
	if uint64(len(payload)) != e.CompressedSize {
		return fmt.Errorf("%w: payload is %d bytes, recorded %d", archivetype.ErrOutOfRange, len(payload), e.CompressedSize)
	}
	if err := checksumValid(e); err != nil {
		return err
	}
	size, err := sizing.Signed[int64](e.OriginalSize)
	if err != nil {
		return err
	}
	dr, release, err := r.dec.Reader(e.Codec, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer release()

	verifier := e.Checksum.Verifier()
	tee := io.TeeReader(dr, verifier)
	if _, err := io.CopyN(w, tee, size); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: output shorter than %d bytes", archivetype.ErrDecompression, size)
		}
		if e.Codec == archivetype.CodecNone {
			return err
		}
		return fmt.Errorf("%w: %v", archivetype.ErrDecompression, err)
	}
	if err := ensureNoExtra(tee); err != nil {
		return err
	}
	if !verifier.Verified() {
		return archivetype.ErrChecksumMismatch
	}
	return nil
}

// readPayload fetches exactly [Offset, Offset+CompressedSize).
func (r *Reader) readPayload(e *archivetype.Entry) ([]byte, error) {
	off, err := sizing.Signed[int64](e.Offset)
	if err != nil {
		return nil, err
	}
	length, err := sizing.Signed[int64](e.CompressedSize)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}
	payload := make([]byte, length)

	if rr, ok := r.source.(RangeReader); ok {
		body, err := rr.ReadRange(off, length)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		if _, err := io.ReadFull(body, payload); err != nil {
			return nil, shortRead(err, length)
		}
		return payload, nil
	}

	n, err := r.source.ReadAt(payload, off)
	if int64(n) == length {
		return payload, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, shortRead(err, length)
}

func shortRead(err error, want int64) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: short read of %d bytes", archivetype.ErrOutOfRange, want)
	}
	return err
}

func verify(e *archivetype.Entry, content []byte) error {
	if uint64(len(content)) != e.OriginalSize {
		return fmt.Errorf("%w: %d bytes, recorded %d", archivetype.ErrDecompression, len(content), e.OriginalSize)
	}
	if err := checksumValid(e); err != nil {
		return err
	}
	v := e.Checksum.Verifier()
	_, _ = v.Write(content) //nolint:errcheck // hash writes never fail
	if !v.Verified() {
		return archivetype.ErrChecksumMismatch
	}
	return nil
}

// checksumValid rejects recorded checksums that cannot be verified, such as
// a malformed digest or an algorithm this build does not link.
func checksumValid(e *archivetype.Entry) error {
	if err := e.Checksum.Validate(); err != nil {
		return fmt.Errorf("%w: recorded checksum %q: %v", archivetype.ErrChecksumMismatch, e.Checksum, err)
	}
	return nil
}

// ensureNoExtra fails if r still has data after the expected output.
func ensureNoExtra(r io.Reader) error {
	var scratch [1]byte
	n, err := r.Read(scratch[:])
	if n > 0 {
		return fmt.Errorf("%w: output longer than recorded", archivetype.ErrDecompression)
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", archivetype.ErrDecompression, err)
}
