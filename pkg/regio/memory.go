package regio

import (
	"errors"
	"sync"
)

// DefaultMemorySpan mirrors the page-sized window the /dev/mem provider maps.
const DefaultMemorySpan = 4096

// ReadHook intercepts reads of one absolute address.
type ReadHook func(addr uint32) (uint32, error)

// WriteHook intercepts writes to one absolute address.
type WriteHook func(addr, val uint32) error

// MemoryProvider simulates physical registers as an in-memory word array.
// Hooks let a caller attach side effects to individual addresses, such as a
// FIFO that drains on read.
type MemoryProvider struct {
	mu     sync.Mutex
	words  map[uint32]uint32
	reads  map[uint32]ReadHook
	writes map[uint32]WriteHook
	live   map[uint32]int
	mapErr error
	span   int
}

// NewMemoryProvider returns an empty provider whose mappings span
// DefaultMemorySpan bytes.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		words:  make(map[uint32]uint32),
		reads:  make(map[uint32]ReadHook),
		writes: make(map[uint32]WriteHook),
		live:   make(map[uint32]int),
		span:   DefaultMemorySpan,
	}
}

// FailMap makes subsequent Map calls return err. A nil err clears it.
func (p *MemoryProvider) FailMap(err error) {
	p.mu.Lock()
	p.mapErr = err
	p.mu.Unlock()
}

// OnRead installs a read hook for addr; nil removes it.
func (p *MemoryProvider) OnRead(addr uint32, h ReadHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h == nil {
		delete(p.reads, addr)
		return
	}
	p.reads[addr] = h
}

// OnWrite installs a write hook for addr; nil removes it.
func (p *MemoryProvider) OnWrite(addr uint32, h WriteHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h == nil {
		delete(p.writes, addr)
		return
	}
	p.writes[addr] = h
}

// Peek returns the stored word at addr without running hooks.
func (p *MemoryProvider) Peek(addr uint32) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.words[addr]
}

// Poke stores a word at addr without running hooks.
func (p *MemoryProvider) Poke(addr, val uint32) {
	p.mu.Lock()
	p.words[addr] = val
	p.mu.Unlock()
}

// Mapped returns the number of live mappings of phys.
func (p *MemoryProvider) Mapped(phys uint32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live[phys]
}

func (p *MemoryProvider) Map(phys uint32) (Mapping, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mapErr != nil {
		return nil, p.mapErr
	}
	p.live[phys]++
	return &memMapping{p: p, phys: phys}, nil
}

func (p *MemoryProvider) read(addr uint32) (uint32, error) {
	p.mu.Lock()
	h := p.reads[addr]
	if h == nil {
		v := p.words[addr]
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()
	return h(addr)
}

func (p *MemoryProvider) write(addr, val uint32) error {
	p.mu.Lock()
	h := p.writes[addr]
	if h == nil {
		p.words[addr] = val
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return h(addr, val)
}

var errDoubleUnmap = errors.New("memory mapping already unmapped")

type memMapping struct {
	p        *MemoryProvider
	phys     uint32
	released bool
}

func (m *memMapping) Read32(addr uint32) (uint32, error) { return m.p.read(addr) }

func (m *memMapping) Write32(addr, val uint32) error { return m.p.write(addr, val) }

func (m *memMapping) Len() int {
	return m.p.span - int(m.phys%uint32(m.p.span))
}

func (m *memMapping) Unmap() error {
	m.p.mu.Lock()
	defer m.p.mu.Unlock()
	if m.released {
		return errDoubleUnmap
	}
	m.released = true
	m.p.live[m.phys]--
	return nil
}
