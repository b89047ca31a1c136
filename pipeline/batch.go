package pipeline

import (
	"sync"
	"time"

	"github.com/scorpius-io/rule-engine/txtypes"
)

// batcher buffers decoded transactions and signals a flush on whichever
// trigger fires first: the buffer reaching size, or timeout elapsing
// since the last flush (spec §4.5). It is the generalized form of the
// teacher's TimedTxSet: a mutex-guarded slice plus an added-time, but
// keyed by flush-worthiness instead of by transaction hash, since the
// pipeline has no need to look up or remove an individual buffered
// transaction before flush.
type batcher struct {
	mu        sync.Mutex
	buf       []txtypes.Transaction
	size      int
	timeout   time.Duration
	lastFlush time.Time
}

func newBatcher(size int, timeout time.Duration) *batcher {
	return &batcher{
		buf:       make([]txtypes.Transaction, 0, size),
		size:      size,
		timeout:   timeout,
		lastFlush: time.Now(),
	}
}

// add appends tx and reports whether the size trigger now fires.
func (b *batcher) add(tx txtypes.Transaction) (flush bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, tx)
	return len(b.buf) >= b.size
}

// dueByTimeout reports whether the time trigger fires, independent of
// buffer occupancy (spec §4.5: "even if the buffer is non-empty but not
// full").
func (b *batcher) dueByTimeout() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.lastFlush) >= b.timeout
}

// drain empties the buffer and resets the flush clock, returning whatever
// had accumulated (possibly empty).
func (b *batcher) drain() []txtypes.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buf
	b.buf = make([]txtypes.Transaction, 0, b.size)
	b.lastFlush = time.Now()
	return out
}

func (b *batcher) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
