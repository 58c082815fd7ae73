// Package transport realizes the single opaque send(header, payload) seam
// described in spec.md §6: the sampling core hands off a completed batch
// without knowing whether it lands on local disk or on a network peer.
package transport

import "github.com/maxgio92/xsamp/pkg/wire"

// Sink is the transport seam the sample aggregator calls on flush.
// Implementations must be safe for concurrent use: the core does not
// serialize calls to Send itself.
type Sink interface {
	Send(header wire.DataHeader, payload wire.SamplePayload) error
}
