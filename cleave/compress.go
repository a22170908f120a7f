package cleave

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// -----------------------------------------------------------------------------
// Gzip Compressor
// -----------------------------------------------------------------------------

type gzipCompressor struct {
	level int
}

// NewGzipCompressor creates a gzip compressor writing files with a .gz
// extension at the default compression level.
func NewGzipCompressor() Compressor {
	return &gzipCompressor{level: gzip.DefaultCompression}
}

func (g *gzipCompressor) Name() string      { return "gzip" }
func (g *gzipCompressor) Extension() string { return ".gz" }

func (g *gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, g.level)
}

func (g *gzipCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Zstd Compressor
// -----------------------------------------------------------------------------

type zstdCompressor struct{}

// NewZstdCompressor creates a Zstandard compressor writing files with a .zst
// extension.
func NewZstdCompressor() Compressor {
	return &zstdCompressor{}
}

func (z *zstdCompressor) Name() string      { return "zstd" }
func (z *zstdCompressor) Extension() string { return ".zst" }

func (z *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (z *zstdCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// -----------------------------------------------------------------------------
// NoOp Compressor
// -----------------------------------------------------------------------------

type noopCompressor struct{}

// NewNoOpCompressor creates a compressor that passes data through unchanged.
func NewNoOpCompressor() Compressor {
	return &noopCompressor{}
}

func (n *noopCompressor) Name() string      { return "noop" }
func (n *noopCompressor) Extension() string { return "" }

func (n *noopCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (n *noopCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// -----------------------------------------------------------------------------
// Lookup
// -----------------------------------------------------------------------------

// CompressorByName returns the compressor registered under name. "none" and
// the empty string select the noop compressor.
func CompressorByName(name string) (Compressor, error) {
	switch name {
	case "", "none", "noop":
		return NewNoOpCompressor(), nil
	case "gzip":
		return NewGzipCompressor(), nil
	case "zstd":
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("cleave: unknown compressor %q", name)
	}
}

// -----------------------------------------------------------------------------
// Table I/O
// -----------------------------------------------------------------------------

// ReadTable decompresses r and decodes one table from it.
func ReadTable(r io.Reader, codec Codec, compressor Compressor) (*Table, error) {
	dr, err := compressor.Decompress(r)
	if err != nil {
		return nil, fmt.Errorf("cleave: %s decompress: %w", compressor.Name(), err)
	}
	defer closer(dr)()

	t, err := codec.Decode(dr)
	if err != nil {
		return nil, fmt.Errorf("cleave: %s decode: %w", codec.Name(), err)
	}
	return t, nil
}

// WriteTable encodes t and writes it compressed to w.
func WriteTable(w io.Writer, t *Table, codec Codec, compressor Compressor) error {
	cw, err := compressor.Compress(w)
	if err != nil {
		return fmt.Errorf("cleave: %s compress: %w", compressor.Name(), err)
	}
	if err := codec.Encode(cw, t); err != nil {
		_ = cw.Close()
		return fmt.Errorf("cleave: %s encode: %w", codec.Name(), err)
	}
	return cw.Close()
}

// closer returns a function that closes c, discarding the error. Use with
// defer for read-side closers where the error carries no information.
func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
