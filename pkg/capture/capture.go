// Package capture implements the stack capture adapter (C5): a
// platform-neutral interface yielding a bounded frame vector from the
// calling goroutine's stack, grounded on the runtime.Callers-based sampling
// idiom in other_examples/grafana-loki__fgprof.go, the Go analogue of
// the fast-trace unwinder in
// original_source/core/collectors/usertime/collector.c.
package capture

import (
	"runtime"

	"github.com/maxgio92/xsamp/pkg/addr"
)

// Capturer yields the program counters of the calling goroutine's stack
// at the moment of the call.
type Capturer interface {
	// Capture returns up to maxFrames PCs, starting at the caller of
	// Capture after skipping skip further leading frames, or nil if no
	// frame remains. It never
	// returns more than maxFrames and never panics on a stack that
	// bottoms out early.
	Capture(skip, maxFrames int) []addr.Address
}

// FastCapturer walks the calling goroutine's stack directly via
// runtime.Callers, the counterpart of the original's fast-trace path.
// It is the only capturer: the original's second, context-based
// variant exists to unwind a saved ucontext_t on architectures without
// frame-pointer support, but runtime.Callers is Go's sole non-cgo stack
// walk on every architecture Go targets, so there is no second Go path
// for it to fall back to (see DESIGN.md).
type FastCapturer struct{}

// NewFastCapturer constructs a FastCapturer.
func NewFastCapturer() *FastCapturer {
	return &FastCapturer{}
}

// Capture implements Capturer.
func (c *FastCapturer) Capture(skip, maxFrames int) []addr.Address {
	pcs := make([]uintptr, maxFrames)

	// +2 skips runtime.Callers itself and this method's frame, matching
	// the caller's "skip leading frames" contract rather than making
	// callers account for capture.go's own stack depth.
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := make([]addr.Address, n)
	for i := 0; i < n; i++ {
		frames[i] = addr.Address(pcs[i])
	}

	return frames
}
