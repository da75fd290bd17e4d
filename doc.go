// Package s4a builds and reads random-access file archives.
//
// An archive is a pair of files sharing a base name:
//   - <base>.s4a.blob: the compressed contents of every file, concatenated in
//     byte-wise path order with no headers or padding
//   - <base>.s4a.db: a SQLite index mapping each path to its byte range,
//     codec, original size, and content checksum
//
// Any single file can be extracted by reading exactly its byte range, which
// makes the blob suitable for serving from object storage or plain HTTP
// with range requests.
//
// # Creating
//
// Create walks a directory, compresses files on a bounded pool of workers,
// and writes the results to the blob in deterministic order:
//
//	res, err := s4a.Create(ctx, "./site", "out/site",
//	    s4a.CreateWithThreads(8),
//	    s4a.CreateWithCodec(s4a.CodecZstd),
//	)
//
// The output is byte-identical for any thread count. On failure no partial
// archive is left behind and an existing archive at the same base survives.
//
// # Reading
//
// Open returns an [Archive], which implements [io/fs.FS]:
//
//	a, err := s4a.Open("out/site")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	content, err := a.Extract("index.html")
//
// Every extraction is checked against the recorded size and checksum. A
// damaged entry fails with an [*EntryError] matching [ErrCorrupt]; the rest
// of the archive stays readable.
//
// OpenWithSource reads file content from any [ByteSource], such as the HTTP
// source in the http subpackage. An optional content-addressed cache
// (see the cache subpackage) avoids repeat reads of identical content.
//
// # Single-object archives
//
// Mux packs the index and blob into one ".s4a" file that Open, OpenMuxed,
// and Demux understand.
package s4a
