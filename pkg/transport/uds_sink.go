package transport

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/xsamp/pkg/wire"
)

// UDSSink forwards flushed batches to a peer listening on a Unix domain
// socket, the networked-transport alternative to FileSink mentioned in
// spec.md §6. It is the client-side counterpart of the UDS pattern in
// pkg/healthcheck: dial once and reuse the connection. A failed write
// drops the connection and returns the error for that batch; the next
// Send redials.
type UDSSink struct {
	socketPath string

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	logger log.Logger
}

func NewUDSSink(socketPath string, logger log.Logger) *UDSSink {
	return &UDSSink{
		socketPath: socketPath,
		logger:     logger.With().Str("component", "transport.uds").Logger(),
	}
}

func (s *UDSSink) Send(header wire.DataHeader, payload wire.SamplePayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	if s.conn == nil {
		conn, err := net.Dial("unix", s.socketPath)
		if err != nil {
			return errors.Wrapf(err, "failed to dial %s", s.socketPath)
		}
		s.conn = conn
	}

	if err := header.Encode(s.conn); err != nil {
		s.reset()
		return errors.Wrap(err, "failed to send header")
	}
	if err := payload.Encode(s.conn); err != nil {
		s.reset()
		return errors.Wrap(err, "failed to send payload")
	}

	return nil
}

func (s *UDSSink) reset() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close closes the underlying connection, if any, and makes every
// subsequent Send return ErrSinkClosed rather than silently redialing.
func (s *UDSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil

	return err
}
