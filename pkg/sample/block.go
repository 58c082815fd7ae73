// Package sample implements the thread-local sample block (C4) and the
// sample aggregator (C6): per-thread header and payload state, stack
// dedup with saturating counts, buffer-full flush, and blame-shift
// overrides. Grounded throughout on the sampleBuffer/send_samples logic
// in original_source/core/collectors/usertime/collector.c and
// original_source/core/collectors/hwctime/collector.c, which share the
// same aggregation design over two different event sources.
package sample

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/xsamp/pkg/addr"
	"github.com/maxgio92/xsamp/pkg/transport"
	"github.com/maxgio92/xsamp/pkg/wire"
)

// MaxFrames is the largest frame count the capture adapter may return
// for one sample.
const MaxFrames = 100

// BufferCapacity is the number of PC slots a TLS block holds before a
// flush is forced.
const BufferCapacity = 1024

// entry is one deduplicated stack in the buffer. The flat
// stacktraces[]/count[] layout from spec.md §3 is reconstructed lazily
// in payloadLocked; keeping entries structured internally avoids having to
// re-derive a head entry's frame count by scanning for the next
// continuation boundary on every dedup comparison.
type entry struct {
	frames []uint64
	count  byte
	full   bool // count has reached the 254 cap; further matches start a new entry
}

// TLSBlock is the per-thread sample state described in spec.md §3: a
// header, a bounded set of deduplicated stack entries, and the flags
// that gate and redirect sampling.
type TLSBlock struct {
	mu sync.Mutex

	header   wire.DataHeader
	interval uint64
	entries  []entry
	used     int

	deferSampling atomic.Bool
	idle          atomic.Bool
	waitBarrier   atomic.Bool
	barrier       atomic.Bool

	sink         transport.Sink
	rankResolver RankResolver
	debug        bool
	logger       log.Logger
}

// New allocates a TLS block from a header template. It copies the
// template's identity fields and sets the time/address range bounds to
// their empty-batch values, matching the state the original's "start"
// installs before the first sample. interval is stamped verbatim onto
// every flushed payload; collector.Start passes the timer period in
// nanoseconds, or the overflow threshold for the counter variant.
func New(template wire.DataHeader, interval uint64, sink transport.Sink, opts ...Opt) *TLSBlock {
	header := template
	header.TimeBegin = uint64(time.Now().UnixNano())
	header.TimeEnd = 0
	header.AddrBegin = math.MaxUint64
	header.AddrEnd = 0
	// Rank is unknown until a RankResolver reports one at flush time; a
	// template that leaves Rank at its zero value must not be mistaken
	// for a resolved rank 0.
	header.Rank = wire.RankUnresolved

	b := &TLSBlock{
		header:   header,
		interval: interval,
		sink:     sink,
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Defer sets or clears the defer_sampling gate. A deferred handler
// returns immediately without touching any buffer state (invariant 7).
func (b *TLSBlock) Defer(v bool) {
	b.deferSampling.Store(v)
}

// SetIdle, SetWaitBarrier and SetBarrier implement the three
// externally-callable blame-shift hooks from spec.md §6. Callable only
// after the block has been created; calls before that have nothing to
// set.
func (b *TLSBlock) SetIdle(v bool)        { b.idle.Store(v) }
func (b *TLSBlock) SetWaitBarrier(v bool) { b.waitBarrier.Store(v) }
func (b *TLSBlock) SetBarrier(v bool)     { b.barrier.Store(v) }

func (b *TLSBlock) resolveBlame() BlameKind {
	switch {
	case b.idle.Load():
		return BlameIdle
	case b.waitBarrier.Load():
		return BlameWaitBarrier
	case b.barrier.Load():
		return BlameBarrier
	default:
		return BlameNone
	}
}

// Sample runs the per-sample procedure of spec.md §4.3 against frames,
// the PCs captured for this event, in top-of-stack-first order. now is
// threaded in rather than read internally so tests can drive the clock.
func (b *TLSBlock) Sample(frames []addr.Address, now time.Time) {
	if b.deferSampling.Load() {
		return
	}
	n := len(frames)
	if n == 0 {
		return
	}
	if n > MaxFrames {
		n = MaxFrames
		frames = frames[:n]
	}

	raw := make([]uint64, n)
	for i, a := range frames {
		raw[i] = uint64(a)
	}
	if k := b.resolveBlame(); k != BlameNone {
		raw[0] = sentinelAddress(k)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.matchLocked(raw) {
		return
	}

	if b.used+n > BufferCapacity {
		b.flushLocked(now)
	}

	b.entries = append(b.entries, entry{frames: raw, count: 1})
	b.used += n

	for _, pc := range raw {
		if pc < b.header.AddrBegin {
			b.header.AddrBegin = pc
		}
		if pc >= b.header.AddrEnd {
			b.header.AddrEnd = pc + 1
		}
	}
}

// matchLocked implements the dedup scan of spec.md §4.3 step 4. It
// reports whether raw matched and was absorbed into an existing entry.
func (b *TLSBlock) matchLocked(raw []uint64) bool {
	for i := range b.entries {
		e := &b.entries[i]
		if e.full || len(e.frames) != len(raw) {
			continue
		}
		if !framesEqual(e.frames, raw) {
			continue
		}

		if e.count < 254 {
			e.count++
			return true
		}

		// Already at the cap: freeze this entry and let the caller
		// start a fresh one for the current occurrence.
		e.full = true
		return false
	}

	return false
}

func framesEqual(a, b []uint64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Flush implements send_samples: it stamps time_end and rank, hands the
// batch to the transport seam, and reinitializes the header and buffer
// for the next batch. It is a no-op on an empty buffer.
func (b *TLSBlock) Flush(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(now)
}

func (b *TLSBlock) flushLocked(now time.Time) error {
	if len(b.entries) == 0 {
		return nil
	}

	header := b.header
	header.TimeEnd = uint64(now.UnixNano())
	if b.rankResolver != nil {
		header.Rank = b.rankResolver()
	}

	payload := b.payloadLocked()

	var err error
	if b.sink != nil {
		err = b.sink.Send(header, payload)
	} else {
		err = ErrNoSink
	}
	if err != nil {
		b.logger.Warn().Err(err).Msg("dropping batch: transport send failed")
	} else if b.debug {
		b.logger.Debug().
			Uint64("time_begin", header.TimeBegin).
			Uint64("time_end", header.TimeEnd).
			Int("stacks", len(b.entries)).
			Int("used", b.used).
			Msg("flushed sample batch")
	}

	b.header.TimeBegin = uint64(now.UnixNano())
	b.header.TimeEnd = 0
	b.header.AddrBegin = math.MaxUint64
	b.header.AddrEnd = 0
	b.entries = nil
	b.used = 0

	return err
}

// payloadLocked flattens the structured entries into the wire's
// stacktraces[]/count[] layout: a head slot carries the saturating
// count, every continuation slot of that stack carries 0.
func (b *TLSBlock) payloadLocked() wire.SamplePayload {
	p := wire.SamplePayload{
		Interval:    b.interval,
		Stacktraces: make([]uint64, 0, b.used),
		Count:       make([]byte, 0, b.used),
	}

	for _, e := range b.entries {
		for i, pc := range e.frames {
			p.Stacktraces = append(p.Stacktraces, pc)
			if i == 0 {
				p.Count = append(p.Count, e.count)
			} else {
				p.Count = append(p.Count, 0)
			}
		}
	}

	return p
}

// Used returns the number of occupied PC slots, for tests and metrics.
func (b *TLSBlock) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Entries returns the number of distinct deduplicated stack entries
// currently buffered, for tests and metrics.
func (b *TLSBlock) Entries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// EntryCount returns the saturating count of entry i, for tests.
func (b *TLSBlock) EntryCount(i int) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries[i].count
}

// Header returns a snapshot of the current header.
func (b *TLSBlock) Header() wire.DataHeader {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.header
}
