package collector

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/maxgio92/xsamp/internal/utils"
)

// registry is the process-wide table of live collectors keyed by OS
// thread id, the realization of the "lock-free lookup keyed by thread
// id" option described in spec.md §9 for per-thread state.
var registry sync.Map // unix.Gettid() (int) -> *Collector

// currentThreadID returns the calling goroutine's OS thread id. Callers
// that need a stable key across the collector's lifetime must run
// under runtime.LockOSThread, since an unlocked goroutine may migrate
// between OS threads between calls.
func currentThreadID() int {
	return unix.Gettid()
}

// ForCurrentThread returns the collector registered for the calling OS
// thread, if any.
func ForCurrentThread() (*Collector, bool) {
	v, ok := registry.Load(currentThreadID())
	if !ok {
		return nil, false
	}
	return v.(*Collector), true
}

func register(tid int, c *Collector) {
	registry.Store(tid, c)
}

func unregister(tid int) {
	registry.Delete(tid)
}

// ActiveCount reports how many collectors are currently registered
// across all OS threads in this process.
func ActiveCount() int {
	return utils.LenSyncMap(&registry)
}
