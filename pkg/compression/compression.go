// Package compression provides compression for GramForge spill segments.
// Disk-backed runs write sorted intermediate batches through a compressing
// writer and stream them back through the matching reader during the merge
// phase, trading a little CPU for much smaller temporary storage.
//
// Algorithm selection:
//   - Snappy/S2: best for speed, moderate compression
//   - LZ4: extremely fast, decent compression (spill default)
//   - Zstd: best compression ratio, good speed
//   - Gzip: wide compatibility, good compression
package compression

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy compression
	Snappy Algorithm = "snappy"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
	// LZ4 represents lz4 compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
)

// ParseAlgorithm converts a configuration string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case None, Gzip, Snappy, S2, LZ4, Zstd:
		return Algorithm(s), nil
	case "":
		return None, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %q", s)
	}
}

// Level represents compression level, trading speed against ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio
	Fastest Level = 1
	// Default balances speed and compression
	Default Level = 5
	// Best maximizes compression ratio
	Best Level = 9
)

// Codec wraps spill segment streams with compression. Implementations are
// safe for concurrent use; each returned writer/reader is not.
type Codec struct {
	algorithm Algorithm
	level     Level
}

// NewCodec creates a codec for the given algorithm and level.
func NewCodec(algorithm Algorithm, level Level) (*Codec, error) {
	switch algorithm {
	case None, Gzip, Snappy, S2, LZ4, Zstd:
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %q", algorithm)
	}
	if level == 0 {
		level = Default
	}
	return &Codec{algorithm: algorithm, level: level}, nil
}

// Algorithm returns the configured algorithm.
func (c *Codec) Algorithm() Algorithm {
	return c.algorithm
}

// NewWriter wraps dst with a compressing writer. The caller must Close the
// writer to flush trailing frames before closing dst.
func (c *Codec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	switch c.algorithm {
	case None:
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriterLevel(dst, mapGzipLevel(c.level))
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case S2:
		return s2.NewWriter(dst), nil
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(c.level))); err != nil {
			return nil, err
		}
		return w, nil
	case Zstd:
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(c.level)))
	}
	return nil, fmt.Errorf("unsupported compression algorithm: %q", c.algorithm)
}

// NewReader wraps src with a decompressing reader.
func (c *Codec) NewReader(src io.Reader) (io.ReadCloser, error) {
	switch c.algorithm {
	case None:
		return io.NopCloser(src), nil
	case Gzip:
		return gzip.NewReader(src)
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case Zstd:
		r, err := zstd.NewReader(src)
		if err != nil {
			return nil, err
		}
		return readCloserFunc{Reader: r, close: func() error { r.Close(); return nil }}, nil
	}
	return nil, fmt.Errorf("unsupported compression algorithm: %q", c.algorithm)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type readCloserFunc struct {
	io.Reader
	close func() error
}

func (r readCloserFunc) Close() error { return r.close() }

func mapGzipLevel(level Level) int {
	switch {
	case level <= Fastest:
		return gzip.BestSpeed
	case level >= Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch {
	case level <= Fastest:
		return lz4.Fast
	case level >= Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch {
	case level <= Fastest:
		return zstd.SpeedFastest
	case level >= Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
