package healthcheck

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// mockConn stands in for a client blocked on the readiness socket
// waiting for the collector to finish starting up.
type mockConn struct {
	mock.Mock
}

func (m *mockConn) Read(b []byte) (n int, err error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *mockConn) Write(b []byte) (n int, err error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *mockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockConn) LocalAddr() net.Addr {
	args := m.Called()
	return args.Get(0).(net.Addr)
}

func (m *mockConn) RemoteAddr() net.Addr {
	args := m.Called()
	return args.Get(0).(net.Addr)
}

func (m *mockConn) SetDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func TestHealthCheckServer_InitializeListener(t *testing.T) {
	t.Run("should start UDS listener without errors", func(t *testing.T) {
		logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
		hcs := NewHealthCheckServer("/tmp/xsamp-collector.sock", logger)

		os.Remove("/tmp/xsamp-collector.sock")
		ln, err := net.Listen("unix", "/tmp/xsamp-collector.sock")
		assert.Nil(t, err)
		hcs.ln = ln

		err = hcs.InitializeListener(context.Background())
		assert.Nil(t, err)
	})
}

func TestHealthCheckServer_NotifyReadiness(t *testing.T) {
	t.Run("should write readiness message once the collector signals ready", func(t *testing.T) {
		logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
		hcs := NewHealthCheckServer("/tmp/xsamp-collector.sock", logger)

		// Simulate the collector's Start succeeding.
		hcs.NotifyReadiness()

		// readyCh is closed now, so a second close (via a send on a
		// closed channel) should panic.
		assert.Panics(t, func() {
			hcs.readyCh <- struct{}{}
		})

		conn := new(mockConn)

		conn.On("Write", []byte{ReadyMsg}).Return(len([]byte{ReadyMsg}), nil)
		conn.On("Close").Return(nil)
		conn.On("SetReadDeadline", mock.Anything).Return(nil)
		conn.On("Read", mock.AnythingOfType("[]uint8")).Return(1, nil)

		hcs.processConnection(context.Background(), conn)

		conn.AssertExpectations(t)
	})
}

func TestHealthCheckServer_ShutdownListener(t *testing.T) {
	t.Run("should properly shut down listener and remove socket", func(t *testing.T) {
		logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
		hcs := NewHealthCheckServer("/tmp/xsamp-collector.sock", logger)

		os.Remove("/tmp/xsamp-collector.sock")
		ln, err := net.Listen("unix", "/tmp/xsamp-collector.sock")
		assert.Nil(t, err)
		hcs.ln = ln

		go hcs.acceptConnections(context.Background())

		err = hcs.ShutdownListener()
		assert.Nil(t, err)

		fi, err := os.Stat(hcs.socketPath)
		assert.Nil(t, fi)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
