// Package hspsim models the register file of an HSP unit in memory.
//
// A Device reacts to register accesses the way the doorbell hardware does,
// so a hsp.Controller can run against it without a board. Trigger writes
// are looped back: ringing a doorbell is treated as its owner ringing us,
// and sets the owner's non-secure bit in the pending register of every
// doorbell that owner holds.
package hspsim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/c35s/hsp/hsp"
	"github.com/c35s/hsp/pmem"
	"golang.org/x/sys/unix"
)

// Device is a simulated HSP register window. It implements pmem.Window,
// and pmem.Mapper for itself.
type Device struct {
	mu     sync.Mutex
	mem    pmem.Memory
	base   int
	writes int
	maps   int
}

const (
	regDimension = 0x380

	regTrigger = 0x0
	regEnable  = 0x4
	regRaw     = 0x8
	regPending = 0xc
)

var le = binary.LittleEndian

// New creates a device with a window of length bytes that reports dim in
// its dimension register. Every sender is enabled on every doorbell.
func New(dim hsp.Dimensions, length int) (*Device, error) {
	d := &Device{
		mem:  make(pmem.Memory, length),
		base: dim.DoorbellOffset(),
	}

	last := hsp.DoorbellRegister(d.base, hsp.APE, regPending)
	if length < regDimension+4 || last+4 > length {
		return nil, fmt.Errorf("hspsim: %#x byte window is too small for %+v: %w", length, dim, unix.ERANGE)
	}

	d.mem.Store32(regDimension, dim.Encode())

	for _, id := range hsp.Doorbells() {
		d.mem.Store32(hsp.DoorbellRegister(d.base, id, regEnable), 0xffffffff)
	}

	return d, nil
}

// Len implements pmem.Window.
func (d *Device) Len() int {
	return len(d.mem)
}

// Load32 implements pmem.Window.
func (d *Device) Load32(off int) uint32 {
	var p [4]byte
	if err := d.HandleMMIO(off, p[:], false); err != nil {
		panic(err)
	}

	return le.Uint32(p[:])
}

// Store32 implements pmem.Window.
func (d *Device) Store32(off int, v uint32) {
	var p [4]byte
	le.PutUint32(p[:], v)
	if err := d.HandleMMIO(off, p[:], true); err != nil {
		panic(err)
	}
}

// Map implements pmem.Mapper. It returns d for any region of d's size.
func (d *Device) Map(r pmem.Region, cached bool, attr pmem.MemAttr) (pmem.Window, error) {
	if r.Length != len(d.mem) {
		return nil, fmt.Errorf("hspsim: map %v: device is %#x bytes: %w", r, len(d.mem), unix.ENOMEM)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.maps++
	return d, nil
}

// Unmap implements pmem.Mapper.
func (d *Device) Unmap(w pmem.Window, length int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w != pmem.Window(d) || d.maps == 0 {
		return fmt.Errorf("hspsim: unmap: not mapped: %w", unix.EINVAL)
	}

	d.maps--
	return nil
}

// Mapped returns the number of outstanding mappings.
func (d *Device) Mapped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maps
}

// HandleMMIO performs a 32-bit register access at off.
func (d *Device) HandleMMIO(off int, data []byte, isWrite bool) error {
	if len(data) != 4 || off < 0 || off%4 != 0 || off+4 > len(d.mem) {
		return fmt.Errorf("hspsim: bad access at %#x len %d: %w", off, len(data), unix.EFAULT)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if isWrite {
		d.writes++
		return d.writeMMIO(off, le.Uint32(data))
	}

	le.PutUint32(data, d.readMMIO(off))
	return nil
}

func (d *Device) readMMIO(off int) uint32 {
	id, reg, ok := d.doorbellAt(off)
	if ok && reg == regTrigger {
		// write-only
		return 0
	}

	if ok && reg == regRaw {
		return d.mem.Load32(hsp.DoorbellRegister(d.base, id, regPending))
	}

	return d.mem.Load32(off)
}

func (d *Device) writeMMIO(off int, v uint32) error {
	if off == regDimension {
		return fmt.Errorf("hspsim: dimension register is read-only: %w", unix.EPERM)
	}

	id, reg, ok := d.doorbellAt(off)
	if !ok {
		d.mem.Store32(off, v)
		return nil
	}

	switch reg {
	case regTrigger:
		if v != 0 {
			s, _ := id.Sender()
			d.raise(s)
		}

	case regRaw:
		return fmt.Errorf("hspsim: %v raw register is read-only: %w", id, unix.EPERM)

	default:
		d.mem.Store32(off, v)
	}

	return nil
}

// Raise sets s's non-secure pending bit on doorbell id, as if s rang it.
func (d *Device) Raise(id hsp.Doorbell, s hsp.Sender) {
	d.set(id, s.NonSecure())
}

// RaiseSecure sets s's secure pending bit on doorbell id.
func (d *Device) RaiseSecure(id hsp.Doorbell, s hsp.Sender) {
	d.set(id, s.Secure())
}

// Pending returns the pending register of doorbell id.
func (d *Device) Pending(id hsp.Doorbell) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mem.Load32(hsp.DoorbellRegister(d.base, id, regPending))
}

// Writes returns the number of register writes handled so far.
func (d *Device) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *Device) set(id hsp.Doorbell, bit uint32) {
	if !id.Valid() {
		panic(fmt.Sprintf("hspsim: invalid doorbell %v", id))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pend(id, bit)
}

// raise loops a ring by s back onto every doorbell s owns.
func (d *Device) raise(s hsp.Sender) {
	for _, id := range hsp.Doorbells() {
		if owner, _ := id.Sender(); owner == s {
			d.pend(id, s.NonSecure())
		}
	}
}

// pend sets bit on id if it is enabled there.
func (d *Device) pend(id hsp.Doorbell, bit uint32) {
	enable := d.mem.Load32(hsp.DoorbellRegister(d.base, id, regEnable))
	if enable&bit == 0 {
		return
	}

	off := hsp.DoorbellRegister(d.base, id, regPending)
	d.mem.Store32(off, d.mem.Load32(off)|bit)
}

// doorbellAt resolves off to a doorbell register.
func (d *Device) doorbellAt(off int) (id hsp.Doorbell, reg int, ok bool) {
	rel := off - d.base
	if rel < 0 {
		return 0, 0, false
	}

	id = hsp.Doorbell(rel / hsp.DoorbellStride)
	if !id.Valid() {
		return 0, 0, false
	}

	return id, rel % hsp.DoorbellStride, true
}
