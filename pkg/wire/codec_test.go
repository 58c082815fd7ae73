package wire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xsamp/pkg/wire"
)

func TestDataHeaderRoundTrip(t *testing.T) {
	h := wire.DataHeader{
		Experiment: 7,
		Collector:  "usertime",
		Host:       "node01",
		PID:        4242,
		PosixTID:   99,
		Rank:       wire.RankUnresolved,
		OMPTid:     3,
		TimeBegin:  1000,
		TimeEnd:    2000,
		AddrBegin:  0x1000,
		AddrEnd:    0x2000,
	}

	var buf bytes.Buffer
	require.NoError(t, h.Encode(&buf))

	got, err := wire.DecodeDataHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestSamplePayloadRoundTrip(t *testing.T) {
	p := wire.SamplePayload{
		Interval:    28571428,
		Stacktraces: []uint64{0x100, 0x200, 0x300},
		Count:       []byte{1, 0, 0},
	}

	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))

	got, err := wire.DecodeSamplePayload(&buf)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestSymbolTableMessageRoundTrip(t *testing.T) {
	msg := wire.SymbolTableMessage{
		Path:     "/usr/bin/app",
		Checksum: 0xdeadbeef,
		Functions: []wire.FunctionMessage{
			{
				Name: "main",
				Bitmaps: []wire.AddressBitmapMessage{
					{RangeBegin: 0x100, RangeEnd: 0x200, Bytes: make([]byte, 16)},
				},
			},
		},
		Statements: []wire.StatementMessage{
			{Path: "main.go", Line: 10, Column: 2, Bitmaps: []wire.AddressBitmapMessage{}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, msg.Encode(&buf))

	got, err := wire.DecodeSymbolTableMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}
