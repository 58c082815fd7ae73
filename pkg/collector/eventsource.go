package collector

import (
	"github.com/maxgio92/xsamp/pkg/capture"
	"github.com/maxgio92/xsamp/pkg/sample"
)

// EventSource is the abstraction over the two variants spec.md §4.4
// describes: an interval timer and a hardware-counter overflow. Both
// drive the same aggregator on the thread that owns tls.
type EventSource interface {
	// Start installs the event source and begins delivering events to
	// tls.Sample via capturer. It returns once delivery is armed.
	Start(tls *sample.TLSBlock, capturer capture.Capturer) error

	// Stop detaches the event source. It must be safe to call at most
	// once and must not block on any in-flight delivery goroutine for
	// longer than that goroutine's current iteration.
	Stop() error
}
