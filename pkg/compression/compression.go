// Package compression moves encoded image payloads in and out of pooled
// memory. A Codec streams through one of several algorithms and decodes
// directly into memory chunk pool buffers, so decoded data never lands in
// an unpooled heap slice.
//
// # Algorithm Selection
//
//   - Snappy/S2: fastest, moderate ratio
//   - LZ4: very fast, decent ratio
//   - Zstd: best ratio at good speed
//   - Gzip: widest compatibility
//
// # Basic Usage
//
//	codec, err := compression.NewCodec(compression.Config{Algorithm: compression.Zstd})
//	err = codec.Encode(dst, src)
//	buf, err := codec.DecodeToBuffer(chunkPool, encoded, sizeHint)
//	defer buf.Close()
package compression

import (
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/imagepool/pkg/pool"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
)

// Algorithm names a compression algorithm.
type Algorithm string

const (
	None   Algorithm = "none"
	Gzip   Algorithm = "gzip"
	Snappy Algorithm = "snappy"
	LZ4    Algorithm = "lz4"
	Zstd   Algorithm = "zstd"
	S2     Algorithm = "s2"
)

// Level trades speed for ratio.
type Level int

const (
	Fastest Level = 1
	Default Level = 5
	Best    Level = 9
)

var (
	// ErrUnsupportedAlgorithm is returned by NewCodec for unknown names.
	ErrUnsupportedAlgorithm = poolerrors.New(poolerrors.ErrorTypeConfig, "unsupported compression algorithm")
	// ErrDecodedTooLarge is returned when decoded output exceeds
	// Config.MaxDecodedSize.
	ErrDecodedTooLarge = poolerrors.New(poolerrors.ErrorTypeCapacity, "decoded payload too large")
)

// Config selects the codec.
type Config struct {
	Algorithm Algorithm `yaml:"algorithm" json:"algorithm"`
	Level     Level     `yaml:"level" json:"level"`
	// MaxDecodedSize bounds decoded output; 0 means unbounded.
	MaxDecodedSize int `yaml:"max_decoded_size" json:"max_decoded_size"`
}

// DefaultConfig returns zstd at the default level, capped at 64 MiB.
func DefaultConfig() Config {
	return Config{Algorithm: Zstd, Level: Default, MaxDecodedSize: 64 * pool.MiB}
}

// Validate checks the algorithm name and size bound.
func (c Config) Validate() error {
	switch c.Algorithm {
	case None, Gzip, Snappy, LZ4, Zstd, S2:
	default:
		return poolerrors.Wrap(ErrUnsupportedAlgorithm, poolerrors.ErrorTypeConfig, "invalid compression section").
			WithDetail("algorithm", c.Algorithm)
	}
	if c.MaxDecodedSize < 0 {
		return poolerrors.New(poolerrors.ErrorTypeConfig, "max_decoded_size cannot be negative").
			WithDetail("max_decoded_size", c.MaxDecodedSize)
	}
	return nil
}

// Codec encodes and decodes streams. It is safe for concurrent use.
type Codec struct {
	cfg        Config
	zstdEnc    sync.Pool
	zstdDec    sync.Pool
	gzipWriter sync.Pool
}

// NewCodec builds a codec for cfg.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Codec{cfg: cfg}
	c.zstdEnc.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(cfg.Level)))
		return enc
	}
	c.zstdDec.New = func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	}
	c.gzipWriter.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzipLevel(cfg.Level))
		return w
	}
	return c, nil
}

// Algorithm returns the configured algorithm.
func (c *Codec) Algorithm() Algorithm {
	return c.cfg.Algorithm
}

// Encode compresses src into dst.
func (c *Codec) Encode(dst io.Writer, src io.Reader) error {
	switch c.cfg.Algorithm {
	case Gzip:
		w := c.gzipWriter.Get().(*gzip.Writer)
		defer c.gzipWriter.Put(w)
		w.Reset(dst)
		return copyAndClose(w, src)
	case Snappy:
		return copyAndClose(snappy.NewBufferedWriter(dst), src)
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(lz4Level(c.cfg.Level))); err != nil {
			return err
		}
		return copyAndClose(w, src)
	case Zstd:
		enc := c.zstdEnc.Get().(*zstd.Encoder)
		defer c.zstdEnc.Put(enc)
		enc.Reset(dst)
		return copyAndClose(enc, src)
	case S2:
		return copyAndClose(s2.NewWriter(dst), src)
	default:
		_, err := io.Copy(dst, src)
		return err
	}
}

// Decode decompresses src into dst, failing with ErrDecodedTooLarge once
// more than MaxDecodedSize bytes come out.
func (c *Codec) Decode(dst io.Writer, src io.Reader) error {
	switch c.cfg.Algorithm {
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return err
		}
		defer r.Close()
		return c.copyLimited(dst, r)
	case Snappy:
		return c.copyLimited(dst, snappy.NewReader(src))
	case LZ4:
		return c.copyLimited(dst, lz4.NewReader(src))
	case Zstd:
		dec := c.zstdDec.Get().(*zstd.Decoder)
		defer c.zstdDec.Put(dec)
		if err := dec.Reset(src); err != nil {
			return err
		}
		return c.copyLimited(dst, dec)
	case S2:
		return c.copyLimited(dst, s2.NewReader(src))
	default:
		return c.copyLimited(dst, src)
	}
}

// EncodeBuffer compresses the contents of buf into dst.
func (c *Codec) EncodeBuffer(dst io.Writer, buf *pool.PooledByteBuffer) error {
	if buf.IsClosed() {
		return pool.ErrClosedBuffer
	}
	return c.Encode(dst, buf.Reader())
}

// DecodeToBuffer decompresses src into chunks from p. sizeHint sizes the
// first chunk; 0 means the pool's smallest. The caller closes the buffer.
func (c *Codec) DecodeToBuffer(p *pool.MemoryChunkPool, src io.Reader, sizeHint int) (*pool.PooledByteBuffer, error) {
	out, err := pool.NewPooledByteBufferOutputStream(p, sizeHint)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if err := c.Decode(out, src); err != nil {
		return nil, err
	}
	return out.ToByteBuffer()
}

func (c *Codec) copyLimited(dst io.Writer, src io.Reader) error {
	limit := c.cfg.MaxDecodedSize
	if limit <= 0 {
		_, err := io.Copy(dst, src)
		return err
	}
	n, err := io.Copy(dst, io.LimitReader(src, int64(limit)+1))
	if err != nil {
		return err
	}
	if n > int64(limit) {
		return poolerrors.Wrap(ErrDecodedTooLarge, poolerrors.ErrorTypeCapacity, "decode aborted").
			WithDetail("max_decoded_size", limit)
	}
	return nil
}

func copyAndClose(w io.WriteCloser, src io.Reader) error {
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func gzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func lz4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func zstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
