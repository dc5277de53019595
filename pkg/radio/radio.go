// Package radio drives the software-defined radio front-end and its sample
// FIFO through two mapped register blocks.
package radio

import (
	"fmt"
	"math"
	"sync"

	"github.com/radiostream/pkg/regio"
)

// Physical base addresses of the two peripherals.
const (
	RadioBase = 0x43c00000 // source/tuner/control block
	FifoBase  = 0x43c10000 // sample FIFO
)

// Radio register offsets relative to RadioBase.
const (
	SourcePincOffset = 0x0 // synthetic (fake ADC) source phase increment
	TunerPincOffset  = 0x4 // tuner phase increment
	ControlOffset    = 0x8 // bit 0: mute/reset
	TimerOffset      = 0xc // free running clock counter
)

// FIFO register offsets relative to FifoBase.
const (
	WordCountOffset     = 0x0
	CurrentSampleOffset = 0x4
)

// DefaultClockHz is the fabric clock driving the DDS and the timer.
const DefaultClockHz = 125e6

const (
	muteBit   = 1 << 0
	phaseSpan = 4294967296.0 // 2^32
)

// Controller performs domain operations on the radio and FIFO register
// blocks. Both regions are owned by the caller and must outlive it.
type Controller struct {
	radio   *regio.Region
	fifo    *regio.Region
	clockHz float64

	// serializes read-modify-write cycles on the control register
	ctlMu sync.Mutex
}

// NewController returns a controller for the given regions.
func NewController(radio, fifo *regio.Region, clockHz float64) (*Controller, error) {
	if radio == nil || fifo == nil {
		return nil, fmt.Errorf("radio and fifo regions are required")
	}
	if clockHz <= 0 {
		return nil, fmt.Errorf("invalid clock frequency %v", clockHz)
	}
	return &Controller{radio: radio, fifo: fifo, clockHz: clockHz}, nil
}

// ClockHz returns the clock used for phase increment computation.
func (c *Controller) ClockHz() float64 { return c.clockHz }

// PhaseIncrement converts a frequency to a DDS phase increment,
// hz / clockHz * 2^32 truncated toward zero and wrapped modulo 2^32.
// Out of range inputs alias exactly as the hardware would.
func PhaseIncrement(hz, clockHz float64) uint32 {
	v := math.Trunc(hz / clockHz * phaseSpan)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	v = math.Mod(v, phaseSpan)
	if v < 0 {
		v += phaseSpan
	}
	return uint32(v)
}

// SetSourceFrequency programs the synthetic source DDS and returns the
// phase increment that was written.
func (c *Controller) SetSourceFrequency(hz float64) (uint32, error) {
	pinc := PhaseIncrement(hz, c.clockHz)
	return pinc, c.radio.Write(SourcePincOffset, pinc)
}

// SetTunerFrequency programs the tuner DDS and returns the phase increment
// that was written.
func (c *Controller) SetTunerFrequency(hz float64) (uint32, error) {
	pinc := PhaseIncrement(hz, c.clockHz)
	return pinc, c.radio.Write(TunerPincOffset, pinc)
}

// WriteControl stores a raw value into the control register.
func (c *Controller) WriteControl(val uint32) error {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()
	return c.radio.Write(ControlOffset, val)
}

// SetMute sets control bit 0 to 1 when muted is true and to 0 otherwise.
// The remaining control bits are preserved.
func (c *Controller) SetMute(muted bool) error {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()

	ctl, err := c.radio.Read(ControlOffset)
	if err != nil {
		return err
	}
	return c.radio.Write(ControlOffset, withMute(ctl, muted))
}

// MuteState reports whether control bit 0 is set.
func (c *Controller) MuteState() (bool, error) {
	ctl, err := c.radio.Read(ControlOffset)
	if err != nil {
		return false, err
	}
	return ctl&muteBit != 0, nil
}

// ToggleMute writes the complement of control bit 0 and returns the new state.
func (c *Controller) ToggleMute() (bool, error) {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()

	ctl, err := c.radio.Read(ControlOffset)
	if err != nil {
		return false, err
	}
	muted := ctl&muteBit == 0
	if err := c.radio.Write(ControlOffset, withMute(ctl, muted)); err != nil {
		return false, err
	}
	return muted, nil
}

func withMute(ctl uint32, muted bool) uint32 {
	if muted {
		return ctl | muteBit
	}
	return ctl &^ muteBit
}

// ReadTimer returns the free running clock counter.
func (c *Controller) ReadTimer() (uint32, error) {
	return c.radio.Read(TimerOffset)
}

// ReadFifoOccupancy returns the number of sample words ready to drain.
func (c *Controller) ReadFifoOccupancy() (uint32, error) {
	return c.fifo.Read(WordCountOffset)
}

// DrainSample reads the current sample register once, consuming one word
// from the hardware FIFO. Callers check occupancy first.
func (c *Controller) DrainSample() (uint32, error) {
	return c.fifo.Read(CurrentSampleOffset)
}
