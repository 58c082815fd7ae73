// Package wire defines the fixed binary schema shared by the sampling
// runtime and the symbol-table store, and the codec that (de)serializes
// it. The framing is XDR-shaped: four-byte length-prefixed opaque byte
// arrays and big-endian fixed-width scalars, built directly on
// encoding/binary since no third-party XDR/RPC codec was available
// anywhere in the retrieved example pack (see DESIGN.md).
package wire

import "math"

// RankUnresolved is the sentinel rank value used until a rank resolver
// (e.g. one backed by an MPI runtime) reports a real value.
const RankUnresolved uint64 = math.MaxUint64

// DataHeader precedes every flushed sample payload.
type DataHeader struct {
	Experiment uint64
	Collector  string
	Host       string
	PID        uint32
	PosixTID   uint32
	Rank       uint64
	OMPTid     uint32
	TimeBegin  uint64
	TimeEnd    uint64
	AddrBegin  uint64
	AddrEnd    uint64
}

// SamplePayload is the per-flush batch of deduplicated stack samples.
// Stacktraces and Count must always have equal length.
type SamplePayload struct {
	Interval    uint64
	Stacktraces []uint64
	Count       []byte
}

// AddressBitmapMessage is the wire form of bitmap.AddressBitmap.
type AddressBitmapMessage struct {
	RangeBegin uint64
	RangeEnd   uint64
	Bytes      []byte
}

// FunctionMessage is the wire form of one symtable function entry.
type FunctionMessage struct {
	Name    string
	Bitmaps []AddressBitmapMessage
}

// StatementMessage is the wire form of one symtable statement entry.
type StatementMessage struct {
	Path    string
	Line    uint32
	Column  uint32
	Bitmaps []AddressBitmapMessage
}

// SymbolTableMessage is the wire form of symtable.SymbolTable.
type SymbolTableMessage struct {
	Path       string
	Checksum   uint64
	Functions  []FunctionMessage
	Statements []StatementMessage
}
