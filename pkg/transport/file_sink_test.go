package transport_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xsamp/pkg/transport"
	"github.com/maxgio92/xsamp/pkg/wire"
)

func TestFileSinkAppendsAndEncodesBatches(t *testing.T) {
	dir := t.TempDir()
	sink := transport.NewFileSink(dir, zerolog.Nop())

	header := wire.DataHeader{Collector: "usertime", PID: 123, PosixTID: 7}
	payload1 := wire.SamplePayload{Interval: 28571428, Stacktraces: []uint64{0x1, 0x2}, Count: []byte{1, 0}}
	payload2 := wire.SamplePayload{Interval: 28571428, Stacktraces: []uint64{0x3}, Count: []byte{1}}

	require.NoError(t, sink.Send(header, payload1))
	require.NoError(t, sink.Send(header, payload2))
	require.NoError(t, sink.Close())

	path := filepath.Join(dir, "usertime-123-7.cbtf-data")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gotHeader1, err := wire.DecodeDataHeader(f)
	require.NoError(t, err)
	require.Equal(t, header, gotHeader1)

	gotPayload1, err := wire.DecodeSamplePayload(f)
	require.NoError(t, err)
	require.Equal(t, payload1, gotPayload1)

	gotHeader2, err := wire.DecodeDataHeader(f)
	require.NoError(t, err)
	require.Equal(t, header, gotHeader2)

	gotPayload2, err := wire.DecodeSamplePayload(f)
	require.NoError(t, err)
	require.Equal(t, payload2, gotPayload2)
}
