//go:build linux

package regio

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultDevMemPath is the character device exposing physical memory.
const DefaultDevMemPath = "/dev/mem"

// DevMem maps physical pages through /dev/mem. Each Map call opens its own
// descriptor and maps the single page that contains the requested address.
type DevMem struct {
	Path string
}

// NewDevMem returns a provider backed by /dev/mem.
func NewDevMem() *DevMem {
	return &DevMem{Path: DefaultDevMemPath}
}

type devMapping struct {
	fd   int
	mem  []byte
	page uint32 // physical address of mem[0]
	phys uint32
}

func (d *DevMem) Map(phys uint32) (Mapping, error) {
	fd, err := unix.Open(d.Path, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", d.Path, err)
	}

	pageSize := unix.Getpagesize()
	page := phys &^ uint32(pageSize-1)

	mem, err := unix.Mmap(fd, int64(page), pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap 0x%08x: %w", page, err)
	}

	return &devMapping{fd: fd, mem: mem, page: page, phys: phys}, nil
}

// word returns a pointer into the mapped page. Bounds are checked by Region.
func (m *devMapping) word(addr uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&m.mem[addr-m.page]))
}

// Register accesses go through sync/atomic so the compiler never merges or
// elides them, the equivalent of a volatile load/store.
func (m *devMapping) Read32(addr uint32) (uint32, error) {
	return atomic.LoadUint32(m.word(addr)), nil
}

func (m *devMapping) Write32(addr, val uint32) error {
	atomic.StoreUint32(m.word(addr), val)
	return nil
}

func (m *devMapping) Len() int {
	return len(m.mem) - int(m.phys-m.page)
}

func (m *devMapping) Unmap() error {
	var firstErr error
	if m.mem != nil {
		if err := unix.Munmap(m.mem); err != nil {
			firstErr = fmt.Errorf("munmap: %w", err)
		}
		m.mem = nil
	}
	if err := unix.Close(m.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close: %w", err)
	}
	return firstErr
}
