package allocator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastMallocAlignment(t *testing.T) {
	for _, size := range []int{1, 3, 16, 17, 1000, 4096} {
		buf := FastMalloc(size)
		require.Len(t, buf, size)
		assert.True(t, IsAligned(buf), "size %d not aligned", size)
	}
	assert.Nil(t, FastMalloc(0))
	assert.Nil(t, FastMalloc(-4))
}

func TestAlignSize(t *testing.T) {
	assert.Equal(t, 16, AlignSize(1, 16))
	assert.Equal(t, 16, AlignSize(16, 16))
	assert.Equal(t, 32, AlignSize(17, 16))
	assert.Equal(t, 8, AlignSize(5, 4))
}

func TestPoolAllocatorReuse(t *testing.T) {
	p := NewPoolAllocator()

	a := p.FastMalloc(1000)
	require.NotNil(t, a)
	p.FastFree(a)

	// 800 bytes fits a 1000-byte block: 1000*0.75 = 750 <= 800.
	b := p.FastMalloc(800)
	require.Len(t, b, 800)
	assert.Same(t, &a[0], &b[0])

	st := p.Stats()
	assert.EqualValues(t, 1, st.Hits)
	assert.EqualValues(t, 1, st.Misses)
	assert.Equal(t, 1, st.Payouts)
	assert.Equal(t, 0, st.Budgets)

	p.FastFree(b)
	require.NoError(t, p.Close())
}

func TestPoolAllocatorRejectsOversizedBlock(t *testing.T) {
	p := NewPoolAllocator()

	a := p.FastMalloc(1000)
	p.FastFree(a)

	// 100 bytes would waste most of a 1000-byte block.
	b := p.FastMalloc(100)
	assert.NotSame(t, &a[0], &b[0])
	assert.EqualValues(t, 2, p.Stats().Misses)

	p.FastFree(b)
	require.NoError(t, p.Close())
}

func TestPoolAllocatorSizeCompareRatio(t *testing.T) {
	p := NewPoolAllocator()
	require.NoError(t, p.SetSizeCompareRatio(0))
	require.Error(t, p.SetSizeCompareRatio(1.5))
	require.Error(t, p.SetSizeCompareRatio(-0.1))

	a := p.FastMalloc(1000)
	p.FastFree(a)
	b := p.FastMalloc(1)
	assert.Same(t, &a[0], &b[0])
	p.FastFree(b)
}

func TestPoolAllocatorRepeatedShapesNoFallback(t *testing.T) {
	p := NewPoolAllocator()
	sizes := []int{4096, 1024, 256}

	for round := range 5 {
		bufs := make([][]byte, 0, len(sizes))
		for _, s := range sizes {
			bufs = append(bufs, p.FastMalloc(s))
		}
		for _, b := range bufs {
			p.FastFree(b)
		}
		if round == 0 {
			assert.EqualValues(t, len(sizes), p.Stats().Misses)
		}
	}
	st := p.Stats()
	assert.EqualValues(t, len(sizes), st.Misses)
	assert.EqualValues(t, 4*len(sizes), st.Hits)
	assert.Equal(t, len(sizes), st.Budgets)
}

func TestPoolAllocatorCloseReportsLeaks(t *testing.T) {
	p := NewPoolAllocator()
	held := p.FastMalloc(64)
	freed := p.FastMalloc(64)
	p.FastFree(freed)

	err := p.Close()
	require.ErrorIs(t, err, ErrOutstandingAllocations)
	assert.Equal(t, 0, p.Stats().Budgets)
	assert.Equal(t, 1, p.Stats().Payouts)

	p.FastFree(held)
	require.NoError(t, p.Close())
}

func TestPoolAllocatorWildFree(t *testing.T) {
	p := NewPoolAllocator()
	p.FastFree(FastMalloc(32))
	st := p.Stats()
	assert.Equal(t, 0, st.Budgets)
	assert.Equal(t, 0, st.Payouts)
}

func TestPoolAllocatorConcurrent(t *testing.T) {
	p := NewPoolAllocator()
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := range 200 {
				b := p.FastMalloc(64 + (seed+i)%4*16)
				b[0] = byte(i)
				p.FastFree(b)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 0, p.Stats().Payouts)
	require.NoError(t, p.Close())
}

func TestUnlockedPoolAllocator(t *testing.T) {
	p := NewUnlockedPoolAllocator()
	a := p.FastMalloc(512)
	p.FastFree(a)
	b := p.FastMalloc(500)
	assert.Same(t, &a[0], &b[0])
	p.FastFree(b)
	p.Clear()
	assert.Equal(t, 0, p.Stats().Budgets)
	require.NoError(t, p.Close())
}

func BenchmarkPoolAllocator(b *testing.B) {
	p := NewPoolAllocator()
	for b.Loop() {
		buf := p.FastMalloc(1 << 16)
		p.FastFree(buf)
	}
}

func BenchmarkFastMalloc(b *testing.B) {
	for b.Loop() {
		_ = FastMalloc(1 << 16)
	}
}
