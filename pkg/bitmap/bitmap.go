// Package bitmap implements the compact bit-per-address encoding used by
// the symbol table to represent sparse sets of addresses, grounded on
// original_source/contrib/Krell/libcbtf-symtab/AddressBitmap.cpp.
package bitmap

import (
	"sort"

	"github.com/maxgio92/xsamp/pkg/addr"
	"github.com/maxgio92/xsamp/pkg/wire"
)

// AddressBitmap is a range plus a bit vector of length Range.Width(),
// one bit per address in the range.
type AddressBitmap struct {
	rng  addr.AddressRange
	bits []bool
}

// New builds an all-zero bitmap spanning range.
func New(rng addr.AddressRange) *AddressBitmap {
	return &AddressBitmap{
		rng:  rng,
		bits: make([]bool, rng.Width()),
	}
}

// NewFromAddresses builds a bitmap spanning [min, max+1) of the given
// addresses, with exactly those bits set.
func NewFromAddresses(addresses []addr.Address) (*AddressBitmap, error) {
	if len(addresses) == 0 {
		return nil, ErrEmptyAddressSet
	}

	sorted := make([]addr.Address, len(addresses))
	copy(sorted, addresses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rng := addr.NewAddressRange(sorted[0], sorted[len(sorted)-1].Add(1))
	b := New(rng)
	for _, a := range sorted {
		b.Set(a, true)
	}

	return b, nil
}

// NewFromMessage reconstructs a bitmap from its wire form. It panics if
// the message's byte length doesn't match its range width's encoding,
// per the "invariant violation is fatal" rule in spec.md §7.
func NewFromMessage(m wire.AddressBitmapMessage) *AddressBitmap {
	rng := addr.NewAddressRange(addr.Address(m.RangeBegin), addr.Address(m.RangeEnd))
	want := encodedByteLen(rng.Width())
	if len(m.Bytes) != want {
		panic(ErrBadMessageSize)
	}

	b := New(rng)
	for i := uint64(0); i < rng.Width(); i++ {
		bit := m.Bytes[i/8]&(1<<(i%8)) != 0
		b.bits[i] = bit
	}

	return b
}

// encodedByteLen returns ceil(width/8), minimum 1, matching spec.md §3.
func encodedByteLen(width uint64) int {
	if width == 0 {
		return 1
	}
	return int((width-1)/8 + 1)
}

// Range returns the address range this bitmap covers.
func (b *AddressBitmap) Range() addr.AddressRange {
	return b.rng
}

// Get returns the bit for address a. It panics if a is outside Range.
func (b *AddressBitmap) Get(a addr.Address) bool {
	if !b.rng.Contains(a) {
		panic("bitmap: address out of range")
	}
	return b.bits[uint64(a-b.rng.Begin)]
}

// Set sets the bit for address a. It panics if a is outside Range.
func (b *AddressBitmap) Set(a addr.Address, v bool) {
	if !b.rng.Contains(a) {
		panic("bitmap: address out of range")
	}
	b.bits[uint64(a-b.rng.Begin)] = v
}

// ContiguousRuns returns the maximal, disjoint, sorted half-open
// subranges of Range whose every bit equals polarity.
func (b *AddressBitmap) ContiguousRuns(polarity bool) []addr.AddressRange {
	var runs []addr.AddressRange

	inRun := false
	var runStart addr.Address

	for i := b.rng.Begin; i != b.rng.End; i++ {
		v := b.Get(i)
		switch {
		case !inRun && v == polarity:
			inRun = true
			runStart = i
		case inRun && v != polarity:
			inRun = false
			runs = append(runs, addr.NewAddressRange(runStart, i))
		}
	}
	if inRun {
		runs = append(runs, addr.NewAddressRange(runStart, b.rng.End))
	}

	return runs
}

// ToMessage serializes the bitmap to its wire form. The output always
// carries at least one byte, even for a zero-width range, for format
// stability, per spec.md §4.1.
func (b *AddressBitmap) ToMessage() wire.AddressBitmapMessage {
	n := encodedByteLen(b.rng.Width())
	out := make([]byte, n)
	for i := uint64(0); i < b.rng.Width(); i++ {
		if b.bits[i] {
			out[i/8] |= 1 << (i % 8)
		}
	}

	return wire.AddressBitmapMessage{
		RangeBegin: uint64(b.rng.Begin),
		RangeEnd:   uint64(b.rng.End),
		Bytes:      out,
	}
}
