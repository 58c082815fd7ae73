package sample

import "reflect"

// BlameKind identifies the OpenMP condition a sample is attributed to
// instead of its native program counter, grounded on the thread_idle /
// thread_wait_barrier / thread_barrier flags in
// original_source/core/collectors/usertime/collector.c. Priority when
// more than one flag is set: Idle > WaitBarrier > Barrier.
type BlameKind int

const (
	BlameNone BlameKind = iota
	BlameIdle
	BlameWaitBarrier
	BlameBarrier
)

// The original collector resolves a blame category to the address of a
// well-known libmonitor symbol via CBTF_GetAddressOfFunction. There is
// no such symbol table in a Go process, so each category is represented
// by the entry address of a package-private marker function, read via
// reflect.Value.Pointer - stable for the life of the process and never
// collides with a real captured PC.
func ompThreadIdleMarker()       {}
func ompThreadWaitBarrierMarker() {}
func ompThreadBarrierMarker()    {}

var blameSentinels = map[BlameKind]uint64{
	BlameIdle:        uint64(reflect.ValueOf(ompThreadIdleMarker).Pointer()),
	BlameWaitBarrier: uint64(reflect.ValueOf(ompThreadWaitBarrierMarker).Pointer()),
	BlameBarrier:     uint64(reflect.ValueOf(ompThreadBarrierMarker).Pointer()),
}

// sentinelAddress returns the designated blame-category address, or 0
// for BlameNone.
func sentinelAddress(k BlameKind) uint64 {
	return blameSentinels[k]
}
