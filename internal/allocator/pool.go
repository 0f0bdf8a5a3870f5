package allocator

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/emirpasic/gods/v2/lists/arraylist"
)

// DefaultSizeCompareRatio is the default fraction of a cached block that a
// request must fill before the block is reused.
const DefaultSizeCompareRatio = 0.75

// chunk is one block owned by a pool, either idle (budget) or lent out (payout).
type chunk struct {
	size int
	data []byte
}

func (c *chunk) addr() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(c.data))
}

// Stats reports pool activity.
type Stats struct {
	Hits    int64 // Requests served from an idle block.
	Misses  int64 // Requests that fell through to FastMalloc.
	Budgets int   // Idle blocks currently cached.
	Payouts int   // Blocks currently lent out.
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// pool implements the best-fit block reuse shared by both pool allocators.
// budgetsLock and payoutsLock are never held at the same time.
type pool struct {
	budgetsLock sync.Locker
	payoutsLock sync.Locker

	budgets *arraylist.List[*chunk]
	payouts *arraylist.List[*chunk]

	sizeCompareRatio atomic.Uint32 // 0..256

	hits   atomic.Int64
	misses atomic.Int64
}

func newPool(budgetsLock, payoutsLock sync.Locker) pool {
	p := pool{
		budgetsLock: budgetsLock,
		payoutsLock: payoutsLock,
		budgets:     arraylist.New[*chunk](),
		payouts:     arraylist.New[*chunk](),
	}
	p.sizeCompareRatio.Store(uint32(DefaultSizeCompareRatio * 256))
	return p
}

// SetSizeCompareRatio sets the minimum fill fraction for block reuse, in [0, 1].
func (p *pool) SetSizeCompareRatio(scr float32) error {
	if scr < 0 || scr > 1 {
		slog.Error("invalid size compare ratio", "ratio", scr)
		return fmt.Errorf("size compare ratio %v out of range [0, 1]", scr)
	}
	p.sizeCompareRatio.Store(uint32(scr * 256))
	return nil
}

// FastMalloc returns an idle block of acceptable size or allocates a new one.
func (p *pool) FastMalloc(size int) []byte {
	ratio := int(p.sizeCompareRatio.Load())

	p.budgetsLock.Lock()
	for i := range p.budgets.Size() {
		c, _ := p.budgets.Get(i)
		if c.size >= size && (c.size*ratio)>>8 <= size {
			p.budgets.Remove(i)
			p.budgetsLock.Unlock()

			p.payoutsLock.Lock()
			p.payouts.Add(c)
			p.payoutsLock.Unlock()

			p.hits.Add(1)
			return c.data[:size]
		}
	}
	p.budgetsLock.Unlock()

	data := FastMalloc(size)
	if data == nil {
		return nil
	}
	p.misses.Add(1)

	p.payoutsLock.Lock()
	p.payouts.Add(&chunk{size: size, data: data})
	p.payoutsLock.Unlock()

	return data
}

// FastFree moves a lent block back to the idle list.
func (p *pool) FastFree(buf []byte) {
	if len(buf) == 0 {
		return
	}
	ptr := unsafe.Pointer(unsafe.SliceData(buf))

	var found *chunk
	p.payoutsLock.Lock()
	for i := range p.payouts.Size() {
		c, _ := p.payouts.Get(i)
		if c.addr() == ptr {
			p.payouts.Remove(i)
			found = c
			break
		}
	}
	p.payoutsLock.Unlock()

	if found == nil {
		slog.Error("pool allocator get wild", "ptr", fmt.Sprintf("%p", ptr))
		FastFree(buf)
		return
	}

	p.budgetsLock.Lock()
	p.budgets.Add(found)
	p.budgetsLock.Unlock()
}

// Clear drops every idle block. Lent blocks are untouched.
func (p *pool) Clear() {
	p.budgetsLock.Lock()
	for _, c := range p.budgets.Values() {
		FastFree(c.data)
	}
	p.budgets.Clear()
	p.budgetsLock.Unlock()
}

// Close clears the pool and reports blocks that are still lent out.
func (p *pool) Close() error {
	p.Clear()

	p.payoutsLock.Lock()
	defer p.payoutsLock.Unlock()

	n := p.payouts.Size()
	if n == 0 {
		return nil
	}
	slog.Error("pool allocator destroyed too early", "outstanding", n)
	for _, c := range p.payouts.Values() {
		slog.Error("still in use", "ptr", fmt.Sprintf("%p", c.addr()), "size", c.size)
	}
	return fmt.Errorf("%w: %d blocks still in use", ErrOutstandingAllocations, n)
}

// Stats returns a snapshot of pool counters.
func (p *pool) Stats() Stats {
	p.budgetsLock.Lock()
	budgets := p.budgets.Size()
	p.budgetsLock.Unlock()

	p.payoutsLock.Lock()
	payouts := p.payouts.Size()
	p.payoutsLock.Unlock()

	return Stats{
		Hits:    p.hits.Load(),
		Misses:  p.misses.Load(),
		Budgets: budgets,
		Payouts: payouts,
	}
}

// PoolAllocator caches released blocks for reuse and is safe for concurrent use.
type PoolAllocator struct {
	pool
}

// NewPoolAllocator creates an empty thread-safe pool.
func NewPoolAllocator() *PoolAllocator {
	return &PoolAllocator{pool: newPool(&sync.Mutex{}, &sync.Mutex{})}
}

// UnlockedPoolAllocator is PoolAllocator without locking, for a single goroutine.
type UnlockedPoolAllocator struct {
	pool
}

// NewUnlockedPoolAllocator creates an empty pool with no synchronization.
func NewUnlockedPoolAllocator() *UnlockedPoolAllocator {
	return &UnlockedPoolAllocator{pool: newPool(noLock{}, noLock{})}
}
