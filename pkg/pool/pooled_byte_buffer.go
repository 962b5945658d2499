package pool

import (
	"io"
	"sync"

	"github.com/ajitpratap0/imagepool/pkg/nativemem"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"github.com/ajitpratap0/imagepool/pkg/references"
)

// ErrClosedBuffer is returned by reads from a closed PooledByteBuffer and
// writes to a closed output stream.
var ErrClosedBuffer = poolerrors.New(poolerrors.ErrorTypeState, "pooled byte buffer is closed")

// PooledByteBuffer is an immutable view of the first Size bytes of a
// pooled memory chunk. Closing it drops its reference; the chunk returns
// to its pool when the last reference goes.
type PooledByteBuffer struct {
	mu   sync.RWMutex
	ref  *references.CloseableReference[*nativemem.Chunk]
	size int
}

// NewPooledByteBuffer takes ownership of ref.
func NewPooledByteBuffer(ref *references.CloseableReference[*nativemem.Chunk], size int) (*PooledByteBuffer, error) {
	chunk, err := ref.Get()
	if err != nil {
		return nil, err
	}
	if size < 0 || size > chunk.Size() {
		return nil, poolerrors.New(poolerrors.ErrorTypeValidation, ErrInvalidSize.Message).
			WithDetail("size", size).
			WithDetail("chunk_size", chunk.Size())
	}
	return &PooledByteBuffer{ref: ref, size: size}, nil
}

// Size returns the number of valid bytes.
func (b *PooledByteBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ReadAt implements io.ReaderAt over the valid bytes.
func (b *PooledByteBuffer) ReadAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	chunk, err := b.chunk()
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, poolerrors.New(poolerrors.ErrorTypeValidation, "negative offset").WithDetail("offset", off)
	}
	if off >= int64(b.size) {
		return 0, io.EOF
	}
	want := len(p)
	if rest := b.size - int(off); want > rest {
		want = rest
	}
	n, err := chunk.Read(int(off), p[:want])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadByteAt returns the byte at offset.
func (b *PooledByteBuffer) ReadByteAt(offset int) (byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	chunk, err := b.chunk()
	if err != nil {
		return 0, err
	}
	if offset < 0 || offset >= b.size {
		return 0, nativemem.ErrOutOfBounds
	}
	return chunk.ReadByte(offset)
}

// Reader returns a reader over the valid bytes. It is invalid once the
// buffer is closed.
func (b *PooledByteBuffer) Reader() *io.SectionReader {
	return io.NewSectionReader(b, 0, int64(b.Size()))
}

// Bytes copies the valid bytes onto the heap.
func (b *PooledByteBuffer) Bytes() ([]byte, error) {
	out := make([]byte, b.Size())
	if _, err := b.ReadAt(out, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// IsClosed reports whether Close was called.
func (b *PooledByteBuffer) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !references.IsValid(b.ref)
}

// Close drops the buffer's chunk reference. Later calls are no-ops.
func (b *PooledByteBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	references.CloseSafely(b.ref)
	return nil
}

func (b *PooledByteBuffer) chunk() (*nativemem.Chunk, error) {
	if !references.IsValid(b.ref) {
		return nil, ErrClosedBuffer
	}
	return b.ref.Get()
}

// PooledByteBufferOutputStream collects written bytes in pooled memory
// chunks, moving to a larger chunk from the pool when one fills up.
type PooledByteBufferOutputStream struct {
	pool  *MemoryChunkPool
	ref   *references.CloseableReference[*nativemem.Chunk]
	count int
}

// NewPooledByteBufferOutputStream starts a stream with a chunk of at least
// initialCapacity bytes; 0 means the pool's smallest chunk.
func NewPooledByteBufferOutputStream(pool *MemoryChunkPool, initialCapacity int) (*PooledByteBufferOutputStream, error) {
	if initialCapacity <= 0 {
		initialCapacity = pool.MinBufferSize()
	}
	chunk, err := pool.Get(initialCapacity)
	if err != nil {
		return nil, err
	}
	return &PooledByteBufferOutputStream{
		pool: pool,
		ref:  references.Of[*nativemem.Chunk](chunk, pool),
	}, nil
}

// Write implements io.Writer.
func (s *PooledByteBufferOutputStream) Write(p []byte) (int, error) {
	if !references.IsValid(s.ref) {
		return 0, ErrClosedBuffer
	}
	if err := s.grow(s.count + len(p)); err != nil {
		return 0, err
	}
	chunk, err := s.ref.Get()
	if err != nil {
		return 0, err
	}
	n, err := chunk.Write(s.count, p)
	s.count += n
	return n, err
}

// Size returns the number of bytes written.
func (s *PooledByteBufferOutputStream) Size() int {
	return s.count
}

// ToByteBuffer returns a buffer sharing the current chunk. The stream stays
// usable; the buffer keeps its chunk alive after the stream moves on.
func (s *PooledByteBufferOutputStream) ToByteBuffer() (*PooledByteBuffer, error) {
	if !references.IsValid(s.ref) {
		return nil, ErrClosedBuffer
	}
	clone, err := s.ref.Clone()
	if err != nil {
		return nil, err
	}
	return NewPooledByteBuffer(clone, s.count)
}

// Close releases the stream's chunk reference.
func (s *PooledByteBufferOutputStream) Close() error {
	references.CloseSafely(s.ref)
	s.count = -1
	return nil
}

func (s *PooledByteBufferOutputStream) grow(needed int) error {
	chunk, err := s.ref.Get()
	if err != nil {
		return err
	}
	if needed <= chunk.Size() {
		return nil
	}
	next, err := s.pool.Get(needed)
	if err != nil {
		return err
	}
	if s.count > 0 {
		if err := chunk.CopyTo(0, next, 0, s.count); err != nil {
			s.pool.Release(next)
			return err
		}
	}
	_ = s.ref.Close()
	s.ref = references.Of[*nativemem.Chunk](next, s.pool)
	return nil
}

// NewPooledByteBufferFromReader drains r into pooled memory.
func NewPooledByteBufferFromReader(pool *MemoryChunkPool, r io.Reader, sizeHint int) (*PooledByteBuffer, error) {
	out, err := NewPooledByteBufferOutputStream(pool, sizeHint)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeInternal, "failed to copy into pooled buffer")
	}
	return out.ToByteBuffer()
}
