// Package compressors provides the stream codecs SSTable files are written
// and read through. Plain flushed tables use NoCompression; compacted tables
// are gzip streams.
package compressors

import "io"

// CompressionType identifies a stream codec.
type CompressionType byte

const (
	CompressionNone CompressionType = iota
	CompressionGzip
)

// StreamCompressor wraps writers and readers of SSTable content. Records are
// produced and consumed as line streams, so the codec works on streams
// rather than blocks.
type StreamCompressor interface {
	// NewWriter wraps w; the returned WriteCloser must be closed to flush
	// the codec's trailer before the underlying file is synced.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// NewReader wraps r for decompression.
	NewReader(r io.Reader) (io.ReadCloser, error)
	Type() CompressionType
}
