package compressors

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// GzipCompressor implements StreamCompressor for compacted SSTables.
type GzipCompressor struct{}

var _ StreamCompressor = (*GzipCompressor)(nil)

func NewGzipCompressor() *GzipCompressor {
	return &GzipCompressor{}
}

func (*GzipCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (*GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return zr, nil
}

func (*GzipCompressor) Type() CompressionType {
	return CompressionGzip
}
