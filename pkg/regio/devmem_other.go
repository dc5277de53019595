//go:build !linux

package regio

import (
	"fmt"
)

// DefaultDevMemPath is the character device exposing physical memory.
const DefaultDevMemPath = "/dev/mem"

// DevMem maps physical pages through /dev/mem. Physical mappings are only
// available on linux; elsewhere every Map call fails.
type DevMem struct {
	Path string
}

// NewDevMem returns a provider backed by /dev/mem.
func NewDevMem() *DevMem {
	return &DevMem{Path: DefaultDevMemPath}
}

func (d *DevMem) Map(phys uint32) (Mapping, error) {
	return nil, fmt.Errorf("physical memory mapping not supported on this platform")
}
