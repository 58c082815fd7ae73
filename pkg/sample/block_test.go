package sample_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xsamp/pkg/addr"
	"github.com/maxgio92/xsamp/pkg/sample"
	"github.com/maxgio92/xsamp/pkg/wire"
)

type fakeSink struct {
	calls []wire.SamplePayload
	err   error
}

func (s *fakeSink) Send(header wire.DataHeader, payload wire.SamplePayload) error {
	s.calls = append(s.calls, payload)
	return s.err
}

func stackOf(n int, base addr.Address) []addr.Address {
	frames := make([]addr.Address, n)
	for i := range frames {
		frames[i] = base + addr.Address(i)
	}
	return frames
}

// S3: the same 3-frame stack delivered 300 times with no intervening
// flush yields two entries, counts 254 and 46.
func TestSampleDedupSaturationS3(t *testing.T) {
	sink := &fakeSink{}
	b := sample.New(wire.DataHeader{Rank: wire.RankUnresolved}, 28571428, sink)

	stack := stackOf(3, 0x1000)
	now := time.Unix(0, 0)
	for i := 0; i < 300; i++ {
		b.Sample(stack, now)
	}

	require.Equal(t, 2, b.Entries())
	require.Equal(t, byte(254), b.EntryCount(0))
	require.Equal(t, byte(46), b.EntryCount(1))
	require.Empty(t, sink.calls, "no flush should have occurred")
}

// S4: BUFFER_SIZE=1024, 100-frame stacks, 11 distinct stacks forces a
// flush after the 10th insertion; send is invoked exactly once before
// the 11th is inserted into a fresh buffer.
func TestSampleFlushOnOverflowS4(t *testing.T) {
	sink := &fakeSink{}
	b := sample.New(wire.DataHeader{Rank: wire.RankUnresolved}, 1, sink)

	now := time.Unix(100, 0)
	for i := 0; i < 10; i++ {
		b.Sample(stackOf(100, addr.Address(i*1000)), now)
	}
	require.Equal(t, 1000, b.Used())
	require.Empty(t, sink.calls)

	b.Sample(stackOf(100, addr.Address(10*1000)), now)

	require.Len(t, sink.calls, 1)
	require.Equal(t, 1000, len(sink.calls[0].Stacktraces))
	require.Equal(t, 100, b.Used(), "fresh buffer holds only the 11th stack")
	require.Equal(t, 1, b.Entries())
}

// S5: with thread_idle set, sampling a stack whose native top is 0xAA
// produces slot 0 equal to the idle sentinel and the remaining slots
// equal to the native frames below 0xAA.
func TestSampleBlameShiftS5(t *testing.T) {
	sink := &fakeSink{}
	b := sample.New(wire.DataHeader{Rank: wire.RankUnresolved}, 1, sink)
	b.SetIdle(true)

	native := []addr.Address{0xAA, 0xBB, 0xCC}
	now := time.Unix(0, 0)
	b.Sample(native, now)

	require.Equal(t, 1, b.Entries())

	require.NoError(t, b.Flush(now.Add(time.Second)))
	require.Len(t, sink.calls, 1)

	got := sink.calls[0].Stacktraces
	require.Len(t, got, 3)
	require.NotEqual(t, uint64(0xAA), got[0], "slot 0 must be overridden by the idle sentinel")
	require.Equal(t, uint64(0xBB), got[1])
	require.Equal(t, uint64(0xCC), got[2])
}

// Blame priority: idle beats wait_barrier beats barrier.
func TestSampleBlamePriority(t *testing.T) {
	sink := &fakeSink{}
	b := sample.New(wire.DataHeader{Rank: wire.RankUnresolved}, 1, sink)
	b.SetBarrier(true)
	b.SetWaitBarrier(true)
	b.SetIdle(true)

	now := time.Unix(0, 0)
	b.Sample([]addr.Address{0x1}, now)
	require.NoError(t, b.Flush(now))

	idleOnly := sink.calls[0].Stacktraces[0]

	sink2 := &fakeSink{}
	b2 := sample.New(wire.DataHeader{Rank: wire.RankUnresolved}, 1, sink2)
	b2.SetIdle(true)
	b2.Sample([]addr.Address{0x1}, now)
	require.NoError(t, b2.Flush(now))

	require.Equal(t, idleOnly, sink2.calls[0].Stacktraces[0])
}

// S7 / invariant 7: setting defer_sampling, delivering events, then
// flushing, leaves the batch untouched from before the gate was set.
func TestSampleDeferGateS7(t *testing.T) {
	sink := &fakeSink{}
	b := sample.New(wire.DataHeader{Rank: wire.RankUnresolved}, 1, sink)

	now := time.Unix(0, 0)
	b.Sample([]addr.Address{0x1, 0x2}, now)
	before := b.Used()

	b.Defer(true)
	for i := 0; i < 50; i++ {
		b.Sample(stackOf(5, addr.Address(i)), now)
	}
	require.Equal(t, before, b.Used())

	b.Defer(false)
	require.NoError(t, b.Flush(now))
	require.Len(t, sink.calls, 1)
	require.Equal(t, before, len(sink.calls[0].Stacktraces))
}

// Invariant 6: header range monotonicity within one batch.
func TestSampleHeaderRangeMonotonicity(t *testing.T) {
	sink := &fakeSink{}
	b := sample.New(wire.DataHeader{Rank: wire.RankUnresolved}, 1, sink)

	now := time.Unix(5, 0)
	b.Sample([]addr.Address{0x500, 0x200, 0x900}, now)
	b.Sample([]addr.Address{0x100, 0x300}, now)

	h := b.Header()
	require.LessOrEqual(t, h.AddrBegin, uint64(0x100))
	require.Greater(t, h.AddrEnd, uint64(0x900))

	require.NoError(t, b.Flush(now.Add(time.Minute)))
	h2 := b.Header()
	require.GreaterOrEqual(t, h2.TimeBegin, uint64(now.Add(time.Minute).UnixNano()))
}

func TestSampleFlushNoOpOnEmptyBuffer(t *testing.T) {
	sink := &fakeSink{}
	b := sample.New(wire.DataHeader{Rank: wire.RankUnresolved}, 1, sink)

	require.NoError(t, b.Flush(time.Unix(0, 0)))
	require.Empty(t, sink.calls)
}

func TestSampleDropsZeroFrameCapture(t *testing.T) {
	sink := &fakeSink{}
	b := sample.New(wire.DataHeader{Rank: wire.RankUnresolved}, 1, sink)

	b.Sample(nil, time.Unix(0, 0))
	require.Equal(t, 0, b.Used())
	require.Equal(t, 0, b.Entries())
}
