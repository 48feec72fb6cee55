//go:build linux

package pmem_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/c35s/hsp/pmem"
	"golang.org/x/sys/unix"
)

func TestDevMemUnaligned(t *testing.T) {
	d := &pmem.DevMem{Path: "/nonexistent"}

	_, err := d.Map(pmem.Region{Type: pmem.TypeDevice, Base: 0x3c00001, Length: os.Getpagesize()}, false, pmem.MemDevice)
	if !errors.Is(err, unix.EINVAL) {
		t.Errorf("error isn't EINVAL: %v", err)
	}
}

// A regular file stands in for /dev/mem: it maps the same way.
func TestDevMemFile(t *testing.T) {
	pgsz := os.Getpagesize()
	path := filepath.Join(t.TempDir(), "mem")
	if err := os.WriteFile(path, make([]byte, 2*pgsz), 0600); err != nil {
		t.Fatal(err)
	}

	d := &pmem.DevMem{Path: path}
	r := pmem.Region{Type: pmem.TypeDevice, Base: uint64(pgsz), Length: pgsz}

	w, err := d.Map(r, false, pmem.MemDevice)
	if err != nil {
		t.Fatal(err)
	}

	if w.Len() != pgsz {
		t.Errorf("Len %d != %d", w.Len(), pgsz)
	}

	w.Store32(8, 0x01020304)
	if v := w.Load32(8); v != 0x01020304 {
		t.Errorf("Load32 %#x != %#x", v, 0x01020304)
	}

	if err := d.Unmap(w, pgsz); err != nil {
		t.Fatal(err)
	}

	if err := d.Unmap(w, pgsz); !errors.Is(err, unix.EINVAL) {
		t.Errorf("second unmap error isn't EINVAL: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if b[pgsz+8] != 0x04 || b[pgsz+11] != 0x01 {
		t.Errorf("store didn't reach the file: % x", b[pgsz+8:pgsz+12])
	}
}
