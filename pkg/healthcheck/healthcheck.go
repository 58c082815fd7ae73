package healthcheck

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"

	log "github.com/rs/zerolog"
)

// ReadyMsg is the single byte a waiting client reads once the collector
// has started sampling. There is no payload beyond the byte itself:
// readiness here is binary, not a handshake.
const ReadyMsg = 0x01

// HealthCheckServer answers "has the collector started sampling yet?"
// over a Unix domain socket, so a process supervising xsamp (or a test)
// can block until the first EventSource is armed instead of polling
// the PID file or guessing a sleep duration.
type HealthCheckServer struct {
	ln         net.Listener
	readyCh    chan struct{}
	socketPath string
	logger     log.Logger
}

// NewHealthCheckServer builds a server bound to socketPath; the socket
// itself isn't created until InitializeListener runs.
func NewHealthCheckServer(socketPath string, logger log.Logger) *HealthCheckServer {
	l := logger.With().Str("component", "healthcheck").Logger()
	return &HealthCheckServer{
		socketPath: socketPath,
		readyCh:    make(chan struct{}),
		logger:     l,
	}
}

// InitializeListener opens the UDS listener and starts accepting
// connections in the background. Call this before the collector starts
// so a stale socket from a prior crashed run is cleared first.
func (s *HealthCheckServer) InitializeListener(ctx context.Context) error {
	// A prior run that crashed without calling ShutdownListener can
	// leave the socket file behind; net.Listen fails on a stale one.
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		fmt.Println("failed to listen on UDS:")
		return errors.Wrap(err, "failed to listen on UDS")
	}
	s.ln = ln

	go s.acceptConnections(ctx)

	return nil
}

// NotifyReadiness marks the collector as ready, unblocking any
// connection already waiting on the socket and every one that connects
// afterward. Call it once, right after the collector's Start succeeds.
func (s *HealthCheckServer) NotifyReadiness() {
	s.logger.Debug().Msg("marking readiness")
	close(s.readyCh)
}

// ShutdownListener closes the listener and removes the socket file so
// the next run doesn't trip over a stale one.
func (s *HealthCheckServer) ShutdownListener() error {
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("error closing listener")
		}
	}

	if err := os.Remove(s.socketPath); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug().Err(err).Msgf("error removing socket")
			return err
		}
		s.logger.Debug().Msg("ignoring removing socket file, as it is already removed")
	}

	return nil
}

// acceptConnections runs until ctx is canceled, handing each accepted
// connection off to processConnection so a slow or hung peer never
// blocks Accept for the rest.
func (s *HealthCheckServer) acceptConnections(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("stopping accepting connections")
			return
		default:
			conn, err := s.ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					s.logger.Debug().Msg("ignoring accepting connection as it is closed")
					return
				}
				s.logger.Warn().Err(err).Msg("accept error")
				continue
			}

			go s.processConnection(ctx, conn)
		}
	}
}

// processConnection blocks a single accepted connection until the
// collector signals readiness (or ctx is canceled), then writes
// ReadyMsg and closes.
func (s *HealthCheckServer) processConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	select {
	case <-s.readyCh:
		// The peer may have hung up while we were waiting on readyCh.
		if !s.isConnectionAlive(conn) {
			s.logger.Debug().Msg("connection is closed")
			return
		}
		if err := s.safeWrite(conn, []byte{ReadyMsg}); err != nil {
			if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				s.logger.Debug().Err(err).Msg("failed to write")
			}
		}
	case <-ctx.Done():
		s.logger.Debug().Msg("ignoring sending readiness message as context is canceled")
		return
	}
}

// isConnectionAlive probes conn with a zero-wait read so a peer that
// disconnected while we waited on readyCh is detected before we try to
// write the readiness byte into a closed pipe.
func (s *HealthCheckServer) isConnectionAlive(conn net.Conn) bool {
	conn.SetReadDeadline(time.Now())
	if _, err := conn.Read([]byte{}); err == io.EOF {
		s.logger.Debug().Err(err).Msg("cannot write ready message: connection is already closed")
		conn.Close()

		return false
	}

	conn.SetReadDeadline(time.Time{})
	return true
}

func (s *HealthCheckServer) safeWrite(conn net.Conn, data []byte) error {
	_, err := conn.Write(data)
	if err != nil {
		switch {
		case errors.Is(err, syscall.EPIPE):
			conn.Close()
			return errors.Wrap(err, "peer closed the connection")
		case errors.Is(err, syscall.ECONNRESET):
			conn.Close()
			return errors.Wrap(err, "peer reset the connection")
		default:
			return errors.Wrap(err, "failed to write")
		}
	}
	return nil
}
