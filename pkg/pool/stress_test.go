package pool

import (
	"testing"
	"time"

	"github.com/ajitpratap0/imagepool/pkg/bitmap"
	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/nativemem"
	"github.com/ajitpratap0/imagepool/pkg/references"
	"github.com/ajitpratap0/imagepool/pkg/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"
)

type poolStressSuite struct {
	testutil.StressSuite
}

func TestPoolStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress suite skipped in short mode")
	}
	suite.Run(t, &poolStressSuite{StressSuite: testutil.StressSuite{Timeout: 30 * time.Second}})
}

func (s *poolStressSuite) TestMemoryChunkReferences() {
	params, err := NewPoolParams(64*KiB, 256*KiB, map[int]int{KiB: 16, 4 * KiB: 16})
	s.Require().NoError(err)
	p, err := NewMemoryChunkPool(params, WithIgnoreHardCap(true))
	s.Require().NoError(err)

	s.RunConcurrently(8, 200, func(w, i int) error {
		size := KiB
		if (w+i)%2 == 0 {
			size = 4 * KiB
		}
		chunk, err := p.Get(size)
		if err != nil {
			return err
		}
		ref := references.Of[*nativemem.Chunk](chunk, p)
		clone, err := ref.Clone()
		if err != nil {
			return err
		}
		if _, err := chunk.Write(0, []byte{byte(w), byte(i)}); err != nil {
			return err
		}
		references.CloseSafely(ref, clone)
		return nil
	})

	st := p.Stats()
	s.Equal(0, st.UsedCount)
	s.LessOrEqual(st.FreeBytes, params.MaxSizeSoftCap)
	p.TrimToNothing()
	s.Equal(0, p.Stats().FreeCount)
}

func (s *poolStressSuite) TestLruBitmapPoolWithTrims() {
	logs := testutil.ObserveGlobalLogger(s.T(), zapcore.ErrorLevel)
	p := NewLruBitmapPool(16*KiB, 8*KiB, nil, NewBitmapCounter(64, MiB))
	reg := memory.NewRegistry()
	reg.Register(p)

	s.RunConcurrently(8, 200, func(w, i int) error {
		if i%50 == 0 {
			reg.Trim(s.Context(), memory.TrimOnCloseToHeapLimit)
		}
		b, err := GetBitmap(p, 8+w, 8, bitmap.ARGB8888)
		if err != nil {
			return err
		}
		p.Release(b)
		return nil
	})

	s.LessOrEqual(p.CurrentSize(), 16*KiB+8*KiB)
	s.Zero(logs.Len(), "no counter went out of range")
}
