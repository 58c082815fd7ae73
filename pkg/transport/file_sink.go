package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/xsamp/pkg/wire"
)

// FileSink streams flushed batches to one file per (collector, pid, tid),
// named per spec.md §6's "cbtf-data" suffix convention. Successive
// batches for the same thread are appended: the wire codec's
// length-prefixed fields make each header+payload pair self-delimiting,
// so concatenation needs no outer framing.
type FileSink struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File

	logger log.Logger
}

// NewFileSink creates a sink that writes under dir, which must already
// exist.
func NewFileSink(dir string, logger log.Logger) *FileSink {
	return &FileSink{
		dir:    dir,
		files:  make(map[string]*os.File),
		logger: logger.With().Str("component", "transport.file").Logger(),
	}
}

func (s *FileSink) Send(header wire.DataHeader, payload wire.SamplePayload) error {
	name := fmt.Sprintf("%s-%d-%d.cbtf-data", header.Collector, header.PID, header.PosixTID)
	path := filepath.Join(s.dir, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[path]
	if !ok {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", path)
		}
		s.files[path] = f
	}

	if err := header.Encode(f); err != nil {
		return errors.Wrap(err, "failed to encode header")
	}
	if err := payload.Encode(f); err != nil {
		return errors.Wrap(err, "failed to encode payload")
	}

	s.logger.Debug().Str("path", path).Int("stacks", len(payload.Stacktraces)).Msg("flushed batch")

	return nil
}

// Close closes every file this sink has opened.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close %s", path)
		}
	}
	s.files = make(map[string]*os.File)

	return firstErr
}
