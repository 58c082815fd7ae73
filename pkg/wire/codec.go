package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var ErrTruncated = errors.New("wire: truncated message")

// writeOpaque writes a 4-byte big-endian length prefix followed by the
// raw bytes, zero-padded to a four-byte boundary: XDR's "opaque<>"
// framing.
func writeOpaque(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	var pad [3]byte
	_, err := w.Write(pad[:(4-len(b)%4)%4])
	return err
}

func readOpaque(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(ErrTruncated, err.Error())
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(ErrTruncated, err.Error())
		}
	}
	if p := (4 - n%4) % 4; p > 0 {
		var pad [3]byte
		if _, err := io.ReadFull(r, pad[:p]); err != nil {
			return nil, errors.Wrap(ErrTruncated, err.Error())
		}
	}
	return buf, nil
}

func writeString(w io.Writer, s string) error {
	return writeOpaque(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readOpaque(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.Wrap(ErrTruncated, err.Error())
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.Wrap(ErrTruncated, err.Error())
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// Encode serializes the header as {experiment, collector, host, pid,
// posix_tid, rank, omp_tid, time_begin, time_end, addr_begin, addr_end}.
func (h *DataHeader) Encode(w io.Writer) error {
	if err := writeUint64(w, h.Experiment); err != nil {
		return err
	}
	if err := writeString(w, h.Collector); err != nil {
		return err
	}
	if err := writeString(w, h.Host); err != nil {
		return err
	}
	if err := writeUint32(w, h.PID); err != nil {
		return err
	}
	if err := writeUint32(w, h.PosixTID); err != nil {
		return err
	}
	if err := writeUint64(w, h.Rank); err != nil {
		return err
	}
	if err := writeUint32(w, h.OMPTid); err != nil {
		return err
	}
	if err := writeUint64(w, h.TimeBegin); err != nil {
		return err
	}
	if err := writeUint64(w, h.TimeEnd); err != nil {
		return err
	}
	if err := writeUint64(w, h.AddrBegin); err != nil {
		return err
	}
	return writeUint64(w, h.AddrEnd)
}

func DecodeDataHeader(r io.Reader) (DataHeader, error) {
	var h DataHeader
	var err error

	if h.Experiment, err = readUint64(r); err != nil {
		return h, err
	}
	if h.Collector, err = readString(r); err != nil {
		return h, err
	}
	if h.Host, err = readString(r); err != nil {
		return h, err
	}
	if h.PID, err = readUint32(r); err != nil {
		return h, err
	}
	if h.PosixTID, err = readUint32(r); err != nil {
		return h, err
	}
	if h.Rank, err = readUint64(r); err != nil {
		return h, err
	}
	if h.OMPTid, err = readUint32(r); err != nil {
		return h, err
	}
	if h.TimeBegin, err = readUint64(r); err != nil {
		return h, err
	}
	if h.TimeEnd, err = readUint64(r); err != nil {
		return h, err
	}
	if h.AddrBegin, err = readUint64(r); err != nil {
		return h, err
	}
	if h.AddrEnd, err = readUint64(r); err != nil {
		return h, err
	}

	return h, nil
}

// Encode serializes the payload as {interval, stacktraces, count}.
// Stacktraces and Count must have equal length; callers should rely on
// the SamplePayload invariant rather than re-check it here.
func (p *SamplePayload) Encode(w io.Writer) error {
	if err := writeUint64(w, p.Interval); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(p.Stacktraces))); err != nil {
		return err
	}
	for _, pc := range p.Stacktraces {
		if err := writeUint64(w, pc); err != nil {
			return err
		}
	}
	return writeOpaque(w, p.Count)
}

func DecodeSamplePayload(r io.Reader) (SamplePayload, error) {
	var p SamplePayload
	var err error

	if p.Interval, err = readUint64(r); err != nil {
		return p, err
	}
	n, err := readUint32(r)
	if err != nil {
		return p, err
	}
	p.Stacktraces = make([]uint64, n)
	for i := range p.Stacktraces {
		if p.Stacktraces[i], err = readUint64(r); err != nil {
			return p, err
		}
	}
	if p.Count, err = readOpaque(r); err != nil {
		return p, err
	}

	return p, nil
}

// Encode serializes the bitmap message as {range: {begin, end}, bytes}.
func (m *AddressBitmapMessage) Encode(w io.Writer) error {
	if err := writeUint64(w, m.RangeBegin); err != nil {
		return err
	}
	if err := writeUint64(w, m.RangeEnd); err != nil {
		return err
	}
	return writeOpaque(w, m.Bytes)
}

func DecodeAddressBitmapMessage(r io.Reader) (AddressBitmapMessage, error) {
	var m AddressBitmapMessage
	var err error

	if m.RangeBegin, err = readUint64(r); err != nil {
		return m, err
	}
	if m.RangeEnd, err = readUint64(r); err != nil {
		return m, err
	}
	if m.Bytes, err = readOpaque(r); err != nil {
		return m, err
	}

	return m, nil
}

func encodeBitmaps(w io.Writer, bitmaps []AddressBitmapMessage) error {
	if err := writeUint32(w, uint32(len(bitmaps))); err != nil {
		return err
	}
	for i := range bitmaps {
		if err := bitmaps[i].Encode(w); err != nil {
			return err
		}
	}
	return nil
}

func decodeBitmaps(r io.Reader) ([]AddressBitmapMessage, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]AddressBitmapMessage, n)
	for i := range out {
		if out[i], err = DecodeAddressBitmapMessage(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f *FunctionMessage) Encode(w io.Writer) error {
	if err := writeString(w, f.Name); err != nil {
		return err
	}
	return encodeBitmaps(w, f.Bitmaps)
}

func decodeFunctionMessage(r io.Reader) (FunctionMessage, error) {
	var f FunctionMessage
	var err error
	if f.Name, err = readString(r); err != nil {
		return f, err
	}
	f.Bitmaps, err = decodeBitmaps(r)
	return f, err
}

func (s *StatementMessage) Encode(w io.Writer) error {
	if err := writeString(w, s.Path); err != nil {
		return err
	}
	if err := writeUint32(w, s.Line); err != nil {
		return err
	}
	if err := writeUint32(w, s.Column); err != nil {
		return err
	}
	return encodeBitmaps(w, s.Bitmaps)
}

func decodeStatementMessage(r io.Reader) (StatementMessage, error) {
	var s StatementMessage
	var err error
	if s.Path, err = readString(r); err != nil {
		return s, err
	}
	if s.Line, err = readUint32(r); err != nil {
		return s, err
	}
	if s.Column, err = readUint32(r); err != nil {
		return s, err
	}
	s.Bitmaps, err = decodeBitmaps(r)
	return s, err
}

// Encode serializes the full symbol table message as {path, checksum,
// functions[], statements[]}.
func (m *SymbolTableMessage) Encode(w io.Writer) error {
	if err := writeString(w, m.Path); err != nil {
		return err
	}
	if err := writeUint64(w, m.Checksum); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(m.Functions))); err != nil {
		return err
	}
	for i := range m.Functions {
		if err := m.Functions[i].Encode(w); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(m.Statements))); err != nil {
		return err
	}
	for i := range m.Statements {
		if err := m.Statements[i].Encode(w); err != nil {
			return err
		}
	}
	return nil
}

func DecodeSymbolTableMessage(r io.Reader) (SymbolTableMessage, error) {
	var m SymbolTableMessage
	var err error

	if m.Path, err = readString(r); err != nil {
		return m, err
	}
	if m.Checksum, err = readUint64(r); err != nil {
		return m, err
	}
	nf, err := readUint32(r)
	if err != nil {
		return m, err
	}
	m.Functions = make([]FunctionMessage, nf)
	for i := range m.Functions {
		if m.Functions[i], err = decodeFunctionMessage(r); err != nil {
			return m, err
		}
	}
	ns, err := readUint32(r)
	if err != nil {
		return m, err
	}
	m.Statements = make([]StatementMessage, ns)
	for i := range m.Statements {
		if m.Statements[i], err = decodeStatementMessage(r); err != nil {
			return m, err
		}
	}

	return m, nil
}

// EncodeToBytes is a convenience wrapper for encoders used by transports
// that need a []byte rather than an io.Writer.
func EncodeToBytes(enc func(io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := enc(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
