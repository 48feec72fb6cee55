//go:build linux

package pmem

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem maps physical memory through a memory device file.
type DevMem struct {

	// Path is the device file. If Path is empty, /dev/mem is used.
	Path string
}

// mapping is a Window over mmaped device memory.
type mapping struct {
	mem []byte
}

// Map maps r from the device file. The region must be page aligned.
// Uncached mappings are opened with O_SYNC.
func (d *DevMem) Map(r Region, cached bool, attr MemAttr) (Window, error) {
	pgsz := os.Getpagesize()
	if r.Length <= 0 || r.Base%uint64(pgsz) != 0 || r.Length%pgsz != 0 {
		return nil, fmt.Errorf("pmem: map %v: region is not page aligned: %w", r, unix.EINVAL)
	}

	path := d.Path
	if path == "" {
		path = "/dev/mem"
	}

	flags := unix.O_RDWR | unix.O_CLOEXEC
	if !cached || attr == MemDevice {
		flags |= unix.O_SYNC
	}

	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("pmem: open %s: %w", path, err)
	}

	// the mapping outlives the fd
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, int64(r.Base), r.Length,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)

	if err != nil {
		return nil, fmt.Errorf("pmem: mmap %v: %w", r, err)
	}

	return &mapping{mem: mem}, nil
}

// Unmap unmaps a window returned by Map.
func (d *DevMem) Unmap(w Window, length int) error {
	m, ok := w.(*mapping)
	if !ok || m.mem == nil {
		return fmt.Errorf("pmem: unmap: not a device mapping: %w", unix.EINVAL)
	}

	if length != len(m.mem) {
		return fmt.Errorf("pmem: unmap: length %#x != %#x: %w", length, len(m.mem), unix.EINVAL)
	}

	if err := unix.Munmap(m.mem); err != nil {
		return fmt.Errorf("pmem: munmap: %w", err)
	}

	m.mem = nil
	return nil
}

func (m *mapping) Len() int {
	return len(m.mem)
}

func (m *mapping) Load32(off int) uint32 {
	return atomic.LoadUint32(m.reg(off))
}

func (m *mapping) Store32(off int, v uint32) {
	atomic.StoreUint32(m.reg(off), v)
}

func (m *mapping) reg(off int) *uint32 {
	checkOffset(off, len(m.mem))
	return (*uint32)(unsafe.Pointer(&m.mem[off]))
}
