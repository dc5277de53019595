package regio

import (
	"errors"
	"fmt"
)

var (
	// ErrMap is matched by every mapping failure.
	ErrMap = errors.New("regio: map failed")
	// ErrRead is matched by every register read failure.
	ErrRead = errors.New("regio: register read failed")
	// ErrWrite is matched by every register write failure.
	ErrWrite = errors.New("regio: register write failed")

	ErrReleased   = errors.New("regio: region already released")
	ErrOutOfRange = errors.New("regio: offset outside mapped region")
	ErrMisaligned = errors.New("regio: offset not word aligned")
)

// MapError reports a physical address the provider could not map.
type MapError struct {
	Phys uint32
	Err  error
}

func (e *MapError) Error() string {
	return fmt.Sprintf("map physical address 0x%08x: %v", e.Phys, e.Err)
}

func (e *MapError) Unwrap() error { return e.Err }

func (e *MapError) Is(target error) bool { return target == ErrMap }

// AccessError reports a failed register read or write together with the
// absolute physical address that was accessed.
type AccessError struct {
	Op   string // "read" or "write"
	Addr uint32
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("register %s at 0x%08x: %v", e.Op, e.Addr, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

func (e *AccessError) Is(target error) bool {
	switch target {
	case ErrRead:
		return e.Op == opRead
	case ErrWrite:
		return e.Op == opWrite
	}
	return false
}

const (
	opRead  = "read"
	opWrite = "write"
)
