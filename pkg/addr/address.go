// Package addr provides the address and address-range primitives shared
// by the symbol table and the sampling runtime. Addresses in this package
// are relative to the start of a linked object, never absolute process
// addresses.
package addr

import "fmt"

// Address is a 64-bit unsigned address relative to the start of a binary.
type Address uint64

// Add returns a + n.
func (a Address) Add(n uint64) Address {
	return a + Address(n)
}

// Sub returns a - n.
func (a Address) Sub(n uint64) Address {
	return a - Address(n)
}

func (a Address) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}
