// Package regio funnels all access to memory-mapped peripheral registers
// through a narrow Provider capability so the backing implementation
// (/dev/mem or an in-memory double) can be swapped without touching callers.
package regio

import (
	"sync"
)

// WordSize is the width of a register in bytes.
const WordSize = 4

// Provider establishes mappings of physical address ranges.
type Provider interface {
	Map(phys uint32) (Mapping, error)
}

// Mapping is one live view of a physical address range as handed out by a
// Provider. Addresses passed to Read32 and Write32 are absolute.
type Mapping interface {
	Read32(addr uint32) (uint32, error)
	Write32(addr, val uint32) error
	// Len is the number of bytes addressable starting at the mapped address.
	Len() int
	Unmap() error
}

// Region is an owned, bounds-checked mapping of a peripheral's register block.
// It must be released exactly once with Unmap; any access afterwards fails
// with ErrReleased.
type Region struct {
	base uint32

	mu sync.RWMutex
	m  Mapping
}

// Map maps the register block starting at phys.
func Map(p Provider, phys uint32) (*Region, error) {
	m, err := p.Map(phys)
	if err != nil {
		return nil, &MapError{Phys: phys, Err: err}
	}
	return &Region{base: phys, m: m}, nil
}

// Base returns the physical base address of the region.
func (r *Region) Base() uint32 { return r.base }

// Live reports whether the region has not been released yet.
func (r *Region) Live() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m != nil
}

// Read returns the register at base+offset.
func (r *Region) Read(offset uint32) (uint32, error) {
	addr := r.base + offset

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.check(offset); err != nil {
		return 0, &AccessError{Op: opRead, Addr: addr, Err: err}
	}
	v, err := r.m.Read32(addr)
	if err != nil {
		return 0, &AccessError{Op: opRead, Addr: addr, Err: err}
	}
	return v, nil
}

// Write stores val into the register at base+offset.
func (r *Region) Write(offset, val uint32) error {
	addr := r.base + offset

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.check(offset); err != nil {
		return &AccessError{Op: opWrite, Addr: addr, Err: err}
	}
	if err := r.m.Write32(addr, val); err != nil {
		return &AccessError{Op: opWrite, Addr: addr, Err: err}
	}
	return nil
}

// Unmap releases the mapping. A second call returns ErrReleased.
func (r *Region) Unmap() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.m == nil {
		return ErrReleased
	}
	err := r.m.Unmap()
	r.m = nil
	return err
}

// check must be called with r.mu held.
func (r *Region) check(offset uint32) error {
	if r.m == nil {
		return ErrReleased
	}
	if offset%WordSize != 0 {
		return ErrMisaligned
	}
	if uint64(offset)+WordSize > uint64(r.m.Len()) {
		return ErrOutOfRange
	}
	return nil
}
