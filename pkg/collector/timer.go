package collector

import (
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/maxgio92/xsamp/pkg/capture"
	"github.com/maxgio92/xsamp/pkg/sample"
)

// intervalSkipFrames discards the delivery goroutine's own capture call
// and signal-relay frame, the Go analogue of the original's fast-trace
// skip count for the usertime collector (no PAPI callback frames to
// skip here, unlike the counter-overflow path).
const intervalSkipFrames = 2

// IntervalTimerSource samples at a fixed wall-clock rate using
// ITIMER_REAL and SIGALRM, the realization of spec.md §4.4's "interval
// timer" event source. Default rate is 35 Hz per §6.
type IntervalTimerSource struct {
	rateHz int

	sigCh chan os.Signal
	done  chan struct{}
}

// NewIntervalTimerSource constructs a timer source sampling at rateHz.
func NewIntervalTimerSource(rateHz int) *IntervalTimerSource {
	return &IntervalTimerSource{rateHz: rateHz}
}

func (s *IntervalTimerSource) Start(tls *sample.TLSBlock, capturer capture.Capturer) error {
	if s.rateHz <= 0 {
		return errors.Wrapf(ErrBadRate, "rate=%d", s.rateHz)
	}

	periodNs := int64(time.Second) / int64(s.rateHz)
	tv := unix.NsecToTimeval(periodNs)
	it := unix.Itimerval{Interval: tv, Value: tv}

	s.sigCh = make(chan os.Signal, 1)
	s.done = make(chan struct{})
	signal.Notify(s.sigCh, unix.SIGALRM)

	if _, err := unix.Setitimer(unix.ITIMER_REAL, it); err != nil {
		signal.Stop(s.sigCh)
		return errors.Wrap(err, "collector: setitimer failed")
	}

	go s.deliver(tls, capturer)

	return nil
}

func (s *IntervalTimerSource) deliver(tls *sample.TLSBlock, capturer capture.Capturer) {
	for {
		select {
		case <-s.sigCh:
			frames := capturer.Capture(intervalSkipFrames, sample.MaxFrames)
			tls.Sample(frames, time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *IntervalTimerSource) Stop() error {
	zero := unix.Itimerval{}
	_, err := unix.Setitimer(unix.ITIMER_REAL, zero)
	signal.Stop(s.sigCh)
	close(s.done)

	return err
}
