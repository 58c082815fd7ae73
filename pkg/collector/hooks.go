package collector

// ThreadIdle, ThreadWaitBarrier and ThreadBarrier are the three
// externally-callable blame-shift hooks of spec.md §6: each sets the
// corresponding flag in the calling OS thread's TLS block. Callable
// only after Start on that thread; a call on a thread with no live
// collector is a silent no-op, matching spec.md §7's "late call" rule.

func ThreadIdle(v bool) {
	if c, ok := ForCurrentThread(); ok {
		c.TLS().SetIdle(v)
	}
}

func ThreadWaitBarrier(v bool) {
	if c, ok := ForCurrentThread(); ok {
		c.TLS().SetWaitBarrier(v)
	}
}

func ThreadBarrier(v bool) {
	if c, ok := ForCurrentThread(); ok {
		c.TLS().SetBarrier(v)
	}
}
