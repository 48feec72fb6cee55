package hsp

import (
	"fmt"

	"github.com/c35s/hsp/pmem"
)

// HSP register layout

const (
	regDimension = 0x380 // shared mailbox/semaphore counts (R)

	dimSMShift = 0  // number of shared mailboxes
	dimSSShift = 4  // number of shared semaphores
	dimASShift = 8  // number of arbitrated semaphores
	dimNumMask = 0xf

	pageSize = 0x10000 // 64K
)

// DoorbellStride is the distance between consecutive doorbell blocks.
const DoorbellStride = 0x100

// per-doorbell register offsets

const (
	regTrigger = 0x0 // write any value to ring (W)
	regEnable  = 0x4 // senders allowed to ring (RW)
	regRaw     = 0x8 // raw pending bitmap (R)
	regPending = 0xc // pending bitmap, write back to clear (RW)
)

// Dimensions holds the counts reported by the dimension register.
type Dimensions struct {
	NumSM int // shared mailboxes
	NumSS int // shared semaphores
	NumAS int // arbitrated semaphores
}

// DecodeDimensions decodes a dimension register value.
func DecodeDimensions(v uint32) Dimensions {
	return Dimensions{
		NumSM: int(v>>dimSMShift) & dimNumMask,
		NumSS: int(v>>dimSSShift) & dimNumMask,
		NumAS: int(v>>dimASShift) & dimNumMask,
	}
}

// Encode returns the dimension register value for d.
func (d Dimensions) Encode() uint32 {
	return uint32(d.NumSM&dimNumMask)<<dimSMShift |
		uint32(d.NumSS&dimNumMask)<<dimSSShift |
		uint32(d.NumAS&dimNumMask)<<dimASShift
}

// DoorbellOffset returns the offset of the doorbell page in the HSP window.
// The window starts with a common page, then one page per pair of shared
// mailboxes, one per shared semaphore and one per arbitrated semaphore.
func (d Dimensions) DoorbellOffset() int {
	return (1 + d.NumSM/2 + d.NumSS + d.NumAS) * pageSize
}

// DoorbellRegister returns the window offset of register reg of doorbell
// id given the doorbell page offset base.
func DoorbellRegister(base int, id Doorbell, reg int) int {
	return base + int(id)*DoorbellStride + reg
}

// doorbellSpan is the size of the doorbell blocks the driver touches.
const doorbellSpan = int(maxDoorbell+1) * DoorbellStride

// block is the register block of one validated doorbell.
type block struct {
	w   pmem.Window
	off int
}

func (b block) load(reg int) uint32 {
	return b.w.Load32(b.off + reg)
}

func (b block) store(reg int, v uint32) {
	b.w.Store32(b.off+reg, v)
}

// checkLayout verifies that the doorbell blocks starting at base fit in w.
func checkLayout(w pmem.Window, base int) error {
	if base+doorbellSpan > w.Len() {
		return fmt.Errorf("doorbell blocks at %#x+%#x overflow the %#x byte window",
			base, doorbellSpan, w.Len())
	}

	return nil
}
