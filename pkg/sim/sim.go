// Package sim simulates the radio peripheral on top of regio.MemoryProvider:
// a DDS tone generator feeding a bounded sample FIFO, and a free running
// timer. Register writes land in provider memory as usual; the simulator
// reads them back whenever it generates samples.
package sim

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/radiostream/pkg/radio"
	"github.com/radiostream/pkg/regio"
)

const (
	DefaultSampleRate = 1e6
	DefaultFifoDepth  = 8192

	// 16-bit signed full scale, backed off so dither never clips.
	amplitude = 32000.0
)

type Config struct {
	ClockHz    float64
	SampleRate float64
	FifoDepth  int
	RadioBase  uint32
	FifoBase   uint32
	// Now replaces time.Now, for tests.
	Now  func() time.Time
	Seed int64
}

// Stats of the simulated FIFO.
type Stats struct {
	Produced   uint64 `json:"produced"`
	Dropped    uint64 `json:"dropped"`
	Underflows uint64 `json:"underflows"`
	Depth      int    `json:"depth"`
}

// Radio is a simulated radio peripheral bound to a MemoryProvider.
type Radio struct {
	p   *regio.MemoryProvider
	cfg Config
	rng *rand.Rand

	mu    sync.Mutex
	start time.Time
	last  time.Time
	carry float64 // fractional samples owed since last refresh
	phase uint32

	ring  []uint32
	head  int
	count int

	produced   uint64
	dropped    uint64
	underflows uint64
}

// New attaches a simulated radio to p. Zero config fields take defaults.
func New(p *regio.MemoryProvider, cfg Config) *Radio {
	if cfg.ClockHz <= 0 {
		cfg.ClockHz = radio.DefaultClockHz
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FifoDepth <= 0 {
		cfg.FifoDepth = DefaultFifoDepth
	}
	if cfg.RadioBase == 0 {
		cfg.RadioBase = radio.RadioBase
	}
	if cfg.FifoBase == 0 {
		cfg.FifoBase = radio.FifoBase
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	r := &Radio{
		p:    p,
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		ring: make([]uint32, cfg.FifoDepth),
	}
	r.start = cfg.Now()
	r.last = r.start

	p.OnRead(cfg.FifoBase+radio.WordCountOffset, r.readWordCount)
	p.OnRead(cfg.FifoBase+radio.CurrentSampleOffset, r.readSample)
	p.OnRead(cfg.RadioBase+radio.TimerOffset, r.readTimer)

	log.Printf("[INFO] sim: radio at 0x%08x, fifo at 0x%08x, %.0f samples/s, depth %d",
		cfg.RadioBase, cfg.FifoBase, cfg.SampleRate, cfg.FifoDepth)
	return r
}

// Detach removes the simulator's register hooks.
func (r *Radio) Detach() {
	r.p.OnRead(r.cfg.FifoBase+radio.WordCountOffset, nil)
	r.p.OnRead(r.cfg.FifoBase+radio.CurrentSampleOffset, nil)
	r.p.OnRead(r.cfg.RadioBase+radio.TimerOffset, nil)
}

// Fill generates n samples immediately, independent of elapsed time.
func (r *Radio) Fill(n int) {
	r.mu.Lock()
	r.generate(n)
	r.mu.Unlock()
}

func (r *Radio) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Produced:   r.produced,
		Dropped:    r.dropped,
		Underflows: r.underflows,
		Depth:      r.count,
	}
}

// ToneHz is the frequency currently generated: source minus tuner.
func (r *Radio) ToneHz() float64 {
	return float64(int32(r.toneStep())) / 4294967296.0 * r.cfg.ClockHz
}

// toneStep is source minus tuner phase increment at the fabric clock.
func (r *Radio) toneStep() uint32 {
	src := r.p.Peek(r.cfg.RadioBase + radio.SourcePincOffset)
	tun := r.p.Peek(r.cfg.RadioBase + radio.TunerPincOffset)
	return src - tun
}

func (r *Radio) readWordCount(uint32) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh()
	return uint32(r.count), nil
}

func (r *Radio) readSample(uint32) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		r.underflows++
		return 0, nil
	}
	v := r.ring[r.head]
	r.head = (r.head + 1) % len(r.ring)
	r.count--
	return v, nil
}

func (r *Radio) readTimer(uint32) (uint32, error) {
	clocks := r.cfg.Now().Sub(r.start).Seconds() * r.cfg.ClockHz
	return uint32(uint64(clocks)), nil
}

// refresh produces the samples owed for the time since the last call.
func (r *Radio) refresh() {
	now := r.cfg.Now()
	owed := now.Sub(r.last).Seconds()*r.cfg.SampleRate + r.carry
	r.last = now
	if owed < 1 {
		r.carry = owed
		return
	}
	n := math.Floor(owed)
	r.carry = owed - n
	// at most one FIFO's worth can still fit; the rest is dropped unseen
	if limit := float64(2 * len(r.ring)); n > limit {
		r.dropped += uint64(n - limit)
		n = limit
	}
	r.generate(int(n))
}

func (r *Radio) generate(n int) {
	// tone step at the sample rate, from the phase increments at the clock
	step := radio.PhaseIncrement(r.ToneHz(), r.cfg.SampleRate)
	// control bit 0 clear holds the DDS in reset: zero samples, phase frozen
	reset := r.p.Peek(r.cfg.RadioBase+radio.ControlOffset)&1 == 0

	for i := 0; i < n; i++ {
		var v uint32
		if !reset {
			v = r.sample()
			r.phase += step
		}
		r.produced++
		if r.count == len(r.ring) {
			r.dropped++
			continue
		}
		r.ring[(r.head+r.count)%len(r.ring)] = v
		r.count++
	}
}

// sample packs I in the low half-word and Q in the high half-word.
func (r *Radio) sample() uint32 {
	theta := 2 * math.Pi * float64(r.phase) / 4294967296.0
	dither := r.rng.Float64() - 0.5
	i := int16(math.Round(amplitude*math.Cos(theta) + dither))
	q := int16(math.Round(amplitude*math.Sin(theta) + dither))
	return uint32(uint16(i)) | uint32(uint16(q))<<16
}

// Unpack splits a packed sample into I and Q.
func Unpack(s uint32) (i, q int16) {
	return int16(uint16(s)), int16(uint16(s >> 16))
}
