package collector

import (
	"os"
	"os/signal"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/maxgio92/xsamp/pkg/capture"
	"github.com/maxgio92/xsamp/pkg/sample"
)

// counterSkipFrames discards the signal trampoline and the overflow
// callback's own frames, matching spec.md §4.5's "6 for the
// counter-overflow path to skip the signal trampoline and PAPI callback
// frames".
const counterSkipFrames = 6

// hwEvents maps the CBTF_HWCTIME_EVENT names this collector recognizes
// to a perf_event_open type/config pair. Only CPU cycles is wired, under
// its perf name (the default) and its PAPI name; unknown names fail
// Start per spec.md §7's "configuration error".
var hwEvents = map[string]struct {
	typ    uint32
	config uint64
}{
	"PAPI_TOT_CYC": {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
	"cycles":       {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
}

// CounterOverflowSource samples on hardware-counter overflow via
// perf_event_open, the realization of spec.md §4.4's counter-based
// variant, grounded on the attr/ioctl surface exercised in
// other_examples/acln0-perf__perf.go and
// other_examples/parca-dev-parca-agent__profiler.go.
type CounterOverflowSource struct {
	event     string
	threshold int64

	fd    int
	sigCh chan os.Signal
	done  chan struct{}
}

// NewCounterOverflowSource constructs a counter-overflow source for
// event, overflowing every threshold occurrences.
func NewCounterOverflowSource(event string, threshold int64) *CounterOverflowSource {
	return &CounterOverflowSource{event: event, threshold: threshold}
}

func (s *CounterOverflowSource) Start(tls *sample.TLSBlock, capturer capture.Capturer) error {
	cfg, ok := hwEvents[s.event]
	if !ok {
		return errors.Wrapf(ErrUnknownEvent, "event=%q", s.event)
	}
	if s.threshold <= 0 {
		return errors.Wrapf(ErrBadThreshold, "threshold=%d", s.threshold)
	}

	attr := &unix.PerfEventAttr{
		Type:        cfg.typ,
		Config:      cfg.config,
		Size:        uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Sample:      uint64(s.threshold),
		Sample_type: unix.PERF_SAMPLE_IP,
		Bits:        unix.PerfBitDisabled,
		Wakeup:      1,
	}

	fd, err := unix.PerfEventOpen(attr, unix.Gettid(), -1, -1, 0)
	if err != nil {
		return errors.Wrap(err, "collector: perf_event_open failed")
	}
	s.fd = fd

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETOWN, os.Getpid()); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "collector: fcntl F_SETOWN failed")
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETSIG, int(unix.SIGIO)); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "collector: fcntl F_SETSIG failed")
	}
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "collector: fcntl F_GETFL failed")
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_ASYNC); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "collector: fcntl F_SETFL failed")
	}

	s.sigCh = make(chan os.Signal, 1)
	s.done = make(chan struct{})
	signal.Notify(s.sigCh, unix.SIGIO)

	if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_REFRESH, 1); err != nil {
		signal.Stop(s.sigCh)
		unix.Close(fd)
		return errors.Wrap(err, "collector: perf ioctl refresh failed")
	}

	go s.deliver(tls, capturer)

	return nil
}

func (s *CounterOverflowSource) deliver(tls *sample.TLSBlock, capturer capture.Capturer) {
	for {
		select {
		case <-s.sigCh:
			frames := capturer.Capture(counterSkipFrames, sample.MaxFrames)
			tls.Sample(frames, time.Now())
			// Re-arm for one more overflow; PERF_EVENT_IOC_REFRESH is a
			// one-shot enable, matching the spec's at-most-one-pending
			// overflow per thread.
			_ = unix.IoctlSetInt(s.fd, unix.PERF_EVENT_IOC_REFRESH, 1)
		case <-s.done:
			return
		}
	}
}

func (s *CounterOverflowSource) Stop() error {
	err := unix.IoctlSetInt(s.fd, unix.PERF_EVENT_IOC_DISABLE, 0)
	signal.Stop(s.sigCh)
	close(s.done)
	unix.Close(s.fd)

	return err
}
