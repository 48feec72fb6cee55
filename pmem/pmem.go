// Package pmem maps physical device memory and provides 32-bit register access to it.
package pmem

import (
	"encoding/binary"
	"fmt"
)

// Type is the memory class of a physical region.
type Type int

const (
	TypeNormal Type = iota
	TypeDevice
)

// MemAttr is the memory type requested for a mapping.
type MemAttr int

const (
	MemNormal MemAttr = iota
	MemDevice
)

// Region describes a physical memory region.
type Region struct {
	Type   Type
	Base   uint64
	Length int
}

// Window is a mapped register window. Offsets are byte offsets from the
// start of the window. They must be 4-byte aligned and inside the window;
// Load32 and Store32 panic otherwise.
type Window interface {

	// Len returns the size of the window in bytes.
	Len() int

	// Load32 reads the 32-bit register at off.
	Load32(off int) uint32

	// Store32 writes the 32-bit register at off.
	Store32(off int, v uint32)
}

// Mapper maps physical regions into the address space.
type Mapper interface {

	// Map maps r. If cached is false the mapping bypasses the CPU cache.
	Map(r Region, cached bool, attr MemAttr) (Window, error)

	// Unmap releases length bytes of a window returned by Map.
	Unmap(w Window, length int) error
}

func (t Type) String() string {
	switch t {
	case TypeNormal:
		return "normal"

	case TypeDevice:
		return "device"

	default:
		return fmt.Sprintf("Type(%d)", t)
	}
}

func (r Region) String() string {
	return fmt.Sprintf("%v@%#x+%#x", r.Type, r.Base, r.Length)
}

// Memory is a Window over ordinary memory. Registers are little endian.
type Memory []byte

var le = binary.LittleEndian

func (m Memory) Len() int {
	return len(m)
}

func (m Memory) Load32(off int) uint32 {
	checkOffset(off, len(m))
	return le.Uint32(m[off:])
}

func (m Memory) Store32(off int, v uint32) {
	checkOffset(off, len(m))
	le.PutUint32(m[off:], v)
}

func checkOffset(off, size int) {
	if off < 0 || off%4 != 0 || off+4 > size {
		panic(fmt.Sprintf("pmem: bad register offset %#x (window size %#x)", off, size))
	}
}
