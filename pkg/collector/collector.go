// Package collector implements the collector lifecycle (C7): the
// per-thread state machine Absent -> Running <-> Paused -> Stopped,
// event-source configuration and installation, and the externally
// callable blame-shift hooks, grounded on
// original_source/core/collectors/usertime/collector.c and
// original_source/core/collectors/hwctime/collector.c.
package collector

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/xsamp/internal/settings"
	"github.com/maxgio92/xsamp/pkg/capture"
	"github.com/maxgio92/xsamp/pkg/sample"
	"github.com/maxgio92/xsamp/pkg/transport"
	"github.com/maxgio92/xsamp/pkg/wire"
)

// Collector owns one thread's TLS sample block and event source. It
// must only be started, paused, resumed and stopped from the OS thread
// it was started on; see spec.md §5.
type Collector struct {
	tid   int
	state State

	variant      Variant
	settings     settings.Collector
	settingsSet  bool
	sink         transport.Sink
	capturer     capture.Capturer
	rankResolver sample.RankResolver
	logger       log.Logger

	tls    *sample.TLSBlock
	source EventSource
}

// New constructs an unstarted Collector. Call Start on the OS thread
// that will own it.
func New(opts ...Option) *Collector {
	c := &Collector{
		state:    StateAbsent,
		capturer: capture.NewFastCapturer(),
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start allocates the TLS block, installs the configured event source
// and transitions to Running. It is a configuration error, surfaced
// synchronously, to start an already-running collector, to request an
// unknown counter event, or to supply a non-positive rate/threshold.
func (c *Collector) Start(template wire.DataHeader) error {
	if c.state == StateRunning || c.state == StatePaused {
		return ErrAlreadyRunning
	}

	cfg := c.settings
	if !c.settingsSet {
		loaded, err := settings.LoadCollector()
		if err != nil {
			return errors.Wrap(err, "collector: failed to load settings")
		}
		cfg = loaded
	}

	c.tid = currentThreadID()

	var interval uint64
	switch c.variant {
	case CounterOverflow:
		c.source = NewCounterOverflowSource(cfg.HwctimeEvent, cfg.HwctimeThreshold)
		interval = uint64(cfg.HwctimeThreshold)
	default:
		if cfg.UsertimeRateHz <= 0 {
			return errors.Wrapf(ErrBadRate, "rate=%d", cfg.UsertimeRateHz)
		}
		c.source = NewIntervalTimerSource(cfg.UsertimeRateHz)
		interval = uint64(time.Second) / uint64(cfg.UsertimeRateHz)
	}

	c.tls = sample.New(template, interval, c.sink,
		sample.WithDebug(cfg.DebugCollector),
		sample.WithLogger(c.logger),
		sample.WithRankResolver(c.rankResolver),
	)

	if c.capturer == nil {
		return ErrNoCapturer
	}

	if err := c.source.Start(c.tls, c.capturer); err != nil {
		c.tls = nil
		return err
	}

	register(c.tid, c)
	c.state = StateRunning

	return nil
}

// Pause sets the defer_sampling gate: the next event delivered on this
// thread is a no-op. Idempotent; tolerated before Start.
func (c *Collector) Pause() {
	if c.state != StateRunning {
		return
	}
	c.tls.Defer(true)
	c.state = StatePaused
}

// Resume clears the defer_sampling gate. Idempotent; tolerated before
// Start or after Stop.
func (c *Collector) Resume() {
	if c.state != StatePaused {
		return
	}
	c.tls.Defer(false)
	c.state = StateRunning
}

// Stop detaches the event source, flushes any buffered samples and
// releases the TLS block. A no-op if the collector was never started.
func (c *Collector) Stop() error {
	if c.state == StateAbsent || c.state == StateStopped {
		return nil
	}

	err := c.source.Stop()
	if flushErr := c.tls.Flush(time.Now()); flushErr != nil && err == nil {
		err = flushErr
	}

	unregister(c.tid)
	c.state = StateStopped

	return err
}

// State reports the collector's current lifecycle state.
func (c *Collector) State() State {
	return c.state
}

// TLS exposes the underlying sample block, for the blame-shift hooks
// and for tests.
func (c *Collector) TLS() *sample.TLSBlock {
	return c.tls
}
