// Package pmemtest provides a recording pmem.Mapper for tests.
package pmemtest

import (
	"errors"
	"sync"

	"github.com/c35s/hsp/pmem"
)

var (
	// ErrMapFailed is returned by Map when Fail is set.
	ErrMapFailed = errors.New("pmemtest: map failed")

	// ErrNotMapped is returned by Unmap when nothing is mapped.
	ErrNotMapped = errors.New("pmemtest: unmap without map")
)

// Call records one Map or Unmap call.
type Call struct {
	Op     string // "map" or "unmap"
	Region pmem.Region
	Cached bool
	Attr   pmem.MemAttr
	Length int
}

// Mapper is a pmem.Mapper that records its calls. Map returns Window if it
// is set, or fresh zeroed memory the size of the region otherwise.
type Mapper struct {
	Window pmem.Window
	Fail   bool

	mu     sync.Mutex
	calls  []Call
	mapped int
}

func (m *Mapper) Map(r pmem.Region, cached bool, attr pmem.MemAttr) (pmem.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "map", Region: r, Cached: cached, Attr: attr})

	if m.Fail {
		return nil, ErrMapFailed
	}

	w := m.Window
	if w == nil {
		w = make(pmem.Memory, r.Length)
	}

	m.mapped++
	return w, nil
}

func (m *Mapper) Unmap(w pmem.Window, length int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "unmap", Length: length})

	if m.mapped == 0 {
		return ErrNotMapped
	}

	m.mapped--
	return nil
}

// Calls returns the recorded calls in order.
func (m *Mapper) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Outstanding returns the number of Map calls not yet balanced by Unmap.
func (m *Mapper) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapped
}
