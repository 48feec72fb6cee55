// Package hsp drives the doorbells of a Tegra HSP (hardware synchronization
// primitives) unit.
//
// A processing element rings another with Ring. The receiver polls with
// Check, which reports a pending notification and acknowledges it. The
// hardware doesn't count rings: rings that arrive before a Check coalesce.
//
// Ring and Check take no locks. A Controller may be used from several
// goroutines as long as Destroy isn't called concurrently with anything
// else, and no two goroutines Check the same doorbell at once.
package hsp

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/c35s/hsp/pmem"
	"golang.org/x/sys/unix"
)

// Region is the HSP instance this driver knows about.
var Region = pmem.Region{
	Type:   pmem.TypeDevice,
	Base:   0x03c00000,
	Length: 0xa0000,
}

var (
	ErrInvalid  = unix.EINVAL // nil argument, bad doorbell or uninitialized controller
	ErrNoMemory = unix.ENOMEM // the HSP window couldn't be mapped
	ErrLayout   = unix.ERANGE // the doorbell page is outside the mapped window
	ErrBusy     = unix.EBUSY  // Init was called twice
)

// Controller owns the mapped register window of one HSP unit.
type Controller struct {

	// Region is the HSP's physical register window.
	// If Region is the zero value, the package-level Region is used.
	Region pmem.Region

	// Logger receives error reports. If Logger is nil, slog.Default is used.
	Logger *slog.Logger

	win  pmem.Window
	dim  Dimensions
	base int // doorbell page offset in win
}

// New initializes a copy of c with m.
func New(m pmem.Mapper, c Controller) (*Controller, error) {
	ctrl := &Controller{
		Region: c.Region,
		Logger: c.Logger,
	}

	if err := ctrl.Init(m); err != nil {
		return nil, err
	}

	return ctrl, nil
}

// Init maps the HSP window with m and locates the doorbell page. The
// dimension register is read once; nothing is written.
func (c *Controller) Init(m pmem.Mapper) error {
	if m == nil || c == nil {
		slog.Error("hsp init: nil argument", "mapper", m != nil, "controller", c != nil)
		return fmt.Errorf("hsp: init: nil argument: %w", ErrInvalid)
	}

	if c.win != nil {
		return fmt.Errorf("hsp: init: already initialized: %w", ErrBusy)
	}

	r := c.region()

	w, err := m.Map(r, false, pmem.MemDevice)
	if err == nil && w == nil {
		err = errors.New("no window")
	}

	if err != nil {
		c.logger().Error("hsp map failed", "region", r, "err", err)
		return fmt.Errorf("hsp: map %v: %w: %w", r, ErrNoMemory, err)
	}

	if w.Len() < regDimension+4 {
		return c.abortInit(m, w, r, fmt.Errorf("window is %#x bytes", w.Len()))
	}

	dim := DecodeDimensions(w.Load32(regDimension))
	base := dim.DoorbellOffset()

	if err := checkLayout(w, base); err != nil {
		return c.abortInit(m, w, r, err)
	}

	c.win = w
	c.dim = dim
	c.base = base

	c.logger().Debug("hsp ready", "region", r,
		"sm", dim.NumSM, "ss", dim.NumSS, "as", dim.NumAS,
		"doorbells", fmt.Sprintf("%#x", base))

	return nil
}

// abortInit unmaps a window Init can't use.
func (c *Controller) abortInit(m pmem.Mapper, w pmem.Window, r pmem.Region, cause error) error {
	c.logger().Error("hsp layout mismatch", "region", r, "err", cause)

	if err := m.Unmap(w, r.Length); err != nil {
		c.logger().Error("hsp unmap failed", "region", r, "err", err)
	}

	return fmt.Errorf("hsp: init: %w: %w", ErrLayout, cause)
}

// Destroy unmaps the HSP window. Destroying a controller that holds no
// mapping does nothing.
func (c *Controller) Destroy(m pmem.Mapper) error {
	if m == nil || c == nil {
		slog.Error("hsp destroy: nil argument", "mapper", m != nil, "controller", c != nil)
		return fmt.Errorf("hsp: destroy: nil argument: %w", ErrInvalid)
	}

	if c.win == nil {
		return nil
	}

	r := c.region()
	if err := m.Unmap(c.win, r.Length); err != nil {
		return fmt.Errorf("hsp: unmap %v: %w", r, err)
	}

	c.win = nil
	c.dim = Dimensions{}
	c.base = 0

	return nil
}

// Ring writes the trigger register of id. It doesn't wait for the owner
// of id to notice.
func (c *Controller) Ring(id Doorbell) error {
	b, err := c.block("ring", id)
	if err != nil {
		return err
	}

	b.store(regTrigger, 1)
	return nil
}

// Check reports whether the owner of id has a notification pending in the
// non-secure half of id's pending bitmap, and if so clears it. A true
// result is returned once per notification.
//
// Check is a read-modify-write of a shared register: only one goroutine
// may Check a given doorbell at a time.
func (c *Controller) Check(id Doorbell) (bool, error) {
	b, err := c.block("check", id)
	if err != nil {
		return false, err
	}

	s, ok := id.Sender()
	if !ok {
		panic(fmt.Sprintf("hsp: valid doorbell %d has no sender", int(id)))
	}

	bit := s.NonSecure()

	v := b.load(regPending)
	if v&bit == 0 {
		return false, nil
	}

	b.store(regPending, v&^bit)
	return true, nil
}

// Dimensions returns the counts read from the dimension register at Init.
func (c *Controller) Dimensions() Dimensions {
	return c.dim
}

// DoorbellBase returns the offset of the doorbell page in the HSP window.
func (c *Controller) DoorbellBase() int {
	return c.base
}

// Mapped reports whether c holds a mapped window.
func (c *Controller) Mapped() bool {
	return c != nil && c.win != nil
}

func (c *Controller) block(op string, id Doorbell) (block, error) {
	if c == nil {
		slog.Error("hsp "+op+": nil controller", "doorbell", id)
		return block{}, fmt.Errorf("hsp: %s %v: nil controller: %w", op, id, ErrInvalid)
	}

	if !id.Valid() {
		c.logger().Error("hsp "+op+": invalid doorbell", "doorbell", id)
		return block{}, fmt.Errorf("hsp: %s %v: invalid doorbell: %w", op, id, ErrInvalid)
	}

	if c.win == nil {
		c.logger().Error("hsp "+op+": not initialized", "doorbell", id)
		return block{}, fmt.Errorf("hsp: %s %v: not initialized: %w", op, id, ErrInvalid)
	}

	return block{w: c.win, off: DoorbellRegister(c.base, id, 0)}, nil
}

func (c *Controller) region() pmem.Region {
	if c.Region == (pmem.Region{}) {
		return Region
	}

	return c.Region
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}

	return c.Logger
}
