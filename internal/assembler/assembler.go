// Package assembler reassembles interleaved QBT segments into whole files.
// It is keyed by (filename, file_timestamp) so that concurrent
// transmissions of different files never cross-contaminate, and it is
// duplicate-safe and order-independent within one transmission (spec.md
// §4.3, §8 invariants 2/5/6).
package assembler

import (
	"container/list"
	"sync"
	"time"

	"github.com/bradsjm/byte-blaster/internal/decoder"
)

// FillFilename is the well-known filler filename the broadcaster sends when
// no higher-priority content is queued. Segments with this name are always
// discarded before they reach the reassembly map.
const FillFilename = "FILLFILE.TXT"

const (
	// DefaultIdleTimeout is how long a pending assembly may go without a
	// new block before it is silently evicted.
	DefaultIdleTimeout = 10 * time.Minute
	// DefaultCapacity bounds the number of concurrently pending
	// assemblies; the least-recently-updated one is evicted past this.
	DefaultCapacity = 1024
)

// CompletedFile is the emitted artifact once every fragment of a
// transmission has been validated and inserted.
type CompletedFile struct {
	Filename        string
	FileTimestamp    time.Time
	Data             []byte
	BlockCount       int
	FirstReceivedAt  time.Time
	LastReceivedAt   time.Time
	Source           string
}

// Key identifies one transmission. The same filename seen again with a
// different timestamp is a distinct file; the same filename+timestamp seen
// twice is the spec-mandated high-priority double broadcast (not
// deduplicated here — see spec.md §4.3 final paragraph).
type Key struct {
	Filename      string
	FileTimestamp time.Time
}

type pending struct {
	key             Key
	expectedBlocks  int
	blocks          map[int][]byte
	firstReceivedAt time.Time
	lastReceivedAt  time.Time
	source          string
	elem            *list.Element // position in lru, for O(1) touch/evict
}

// Assembler holds in-progress reassemblies. It is safe for concurrent use,
// though in the supervisor's wiring only the reader task (R) ever calls
// Insert (spec.md §5).
type Assembler struct {
	mu          sync.Mutex
	idleTimeout time.Duration
	capacity    int
	pending     map[Key]*pending
	lru         *list.List // front = most recently updated

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures an Assembler at construction.
type Option func(*Assembler)

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(a *Assembler) { a.idleTimeout = d }
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(a *Assembler) { a.capacity = n }
}

// New returns an empty Assembler.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		idleTimeout: DefaultIdleTimeout,
		capacity:    DefaultCapacity,
		pending:     make(map[Key]*pending),
		lru:         list.New(),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Insert accepts one decoded segment. It returns the completed file and
// true if this segment was the one that completed its transmission.
func (a *Assembler) Insert(seg decoder.Segment) (CompletedFile, bool) {
	if seg.Filename == FillFilename {
		return CompletedFile{}, false
	}
	if seg.BlockNumber < 1 || seg.BlockNumber > seg.TotalBlocks {
		return CompletedFile{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := Key{Filename: seg.Filename, FileTimestamp: seg.FileTimestamp}
	p, ok := a.pending[key]
	if !ok {
		p = &pending{
			key:             key,
			expectedBlocks:  seg.TotalBlocks,
			blocks:          make(map[int][]byte, seg.TotalBlocks),
			firstReceivedAt: seg.ReceivedAt,
			source:          seg.Source,
		}
		p.elem = a.lru.PushFront(p)
		a.pending[key] = p
		a.evictOverCapacityLocked()
	}

	// A server that changes its mind about total_blocks mid-transmission
	// forces a reset rather than silent corruption (spec.md §4.3 rule 4).
	if p.expectedBlocks != seg.TotalBlocks {
		p.expectedBlocks = seg.TotalBlocks
		p.blocks = make(map[int][]byte, seg.TotalBlocks)
		p.firstReceivedAt = seg.ReceivedAt
	}

	if _, dup := p.blocks[seg.BlockNumber]; dup {
		a.lru.MoveToFront(p.elem)
		return CompletedFile{}, false
	}

	p.blocks[seg.BlockNumber] = seg.Content
	p.lastReceivedAt = seg.ReceivedAt
	p.source = seg.Source
	a.lru.MoveToFront(p.elem)

	if len(p.blocks) < p.expectedBlocks {
		return CompletedFile{}, false
	}

	data := make([]byte, 0, p.expectedBlocks*1024)
	for i := 1; i <= p.expectedBlocks; i++ {
		data = append(data, p.blocks[i]...)
	}
	cf := CompletedFile{
		Filename:        key.Filename,
		FileTimestamp:   key.FileTimestamp,
		Data:            data,
		BlockCount:      p.expectedBlocks,
		FirstReceivedAt: p.firstReceivedAt,
		LastReceivedAt:  p.lastReceivedAt,
		Source:          p.source,
	}
	a.removeLocked(p)
	return cf, true
}

// evictOverCapacityLocked drops the least-recently-updated pending
// assembly once the live count exceeds capacity. Called with a.mu held.
func (a *Assembler) evictOverCapacityLocked() {
	for len(a.pending) > a.capacity {
		oldest := a.lru.Back()
		if oldest == nil {
			return
		}
		a.removeLocked(oldest.Value.(*pending))
	}
}

func (a *Assembler) removeLocked(p *pending) {
	delete(a.pending, p.key)
	a.lru.Remove(p.elem)
}

// Pending returns the number of in-progress assemblies (for tests/metrics).
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// sweepIdle drops assemblies that haven't received a block in idleTimeout.
func (a *Assembler) sweepIdle(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for e := a.lru.Back(); e != nil; {
		p := e.Value.(*pending)
		if now.Sub(p.lastReceivedAt) <= a.idleTimeout {
			break // walking from the least-recent end; nothing newer qualifies
		}
		prev := e.Prev()
		a.removeLocked(p)
		e = prev
	}
}

// Start runs a background sweep for idle-timeout eviction until Stop is
// called. It is independent of the supervisor's R/K/W/S tasks (spec.md §5:
// "the file assembler runs wherever segment events are delivered").
func (a *Assembler) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		interval := a.idleTimeout / 2
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case now := <-ticker.C:
				a.sweepIdle(now)
			}
		}
	}()
}

// Stop halts the background sweep and waits for it to exit.
func (a *Assembler) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}
