package collector

import (
	log "github.com/rs/zerolog"

	"github.com/maxgio92/xsamp/internal/settings"
	"github.com/maxgio92/xsamp/pkg/capture"
	"github.com/maxgio92/xsamp/pkg/sample"
	"github.com/maxgio92/xsamp/pkg/transport"
)

// Variant selects which event source Start installs, per spec.md §4.4.
type Variant int

const (
	// IntervalTimer samples at a fixed wall-clock rate.
	IntervalTimer Variant = iota

	// CounterOverflow samples on hardware-counter overflow.
	CounterOverflow
)

// Option configures a Collector before Start installs its event
// source.
type Option func(*Collector)

// WithVariant selects the event source. Default is IntervalTimer.
func WithVariant(v Variant) Option {
	return func(c *Collector) {
		c.variant = v
	}
}

// WithSink installs the transport seam samples are flushed to.
func WithSink(sink transport.Sink) Option {
	return func(c *Collector) {
		c.sink = sink
	}
}

// WithCapturer overrides the stack capture adapter. Default is
// capture.NewFastCapturer().
func WithCapturer(capturer capture.Capturer) Option {
	return func(c *Collector) {
		c.capturer = capturer
	}
}

// WithSettings overrides the environment-derived configuration Start
// would otherwise read via settings.LoadCollector.
func WithSettings(s settings.Collector) Option {
	return func(c *Collector) {
		c.settings = s
		c.settingsSet = true
	}
}

// WithRankResolver installs the MPI rank resolver forwarded to the
// underlying sample.TLSBlock; see spec.md §9's rank sentinel rule.
func WithRankResolver(resolver sample.RankResolver) Option {
	return func(c *Collector) {
		c.rankResolver = resolver
	}
}

// WithLogger installs a child logger. Default is a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Collector) {
		c.logger = logger.With().Str("component", "collector").Logger()
	}
}
