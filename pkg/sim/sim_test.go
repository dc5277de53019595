package sim

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiostream/pkg/radio"
	"github.com/radiostream/pkg/regio"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type rig struct {
	p     *regio.MemoryProvider
	sim   *Radio
	ctl   *radio.Controller
	clock *fakeClock
}

func newRig(t *testing.T, sampleRate float64, depth int) *rig {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	p := regio.NewMemoryProvider()
	s := New(p, Config{SampleRate: sampleRate, FifoDepth: depth, Now: clock.Now, Seed: 1})
	t.Cleanup(s.Detach)

	rr, err := regio.Map(p, radio.RadioBase)
	require.NoError(t, err)
	fr, err := regio.Map(p, radio.FifoBase)
	require.NoError(t, err)
	t.Cleanup(func() {
		rr.Unmap()
		fr.Unmap()
	})
	ctl, err := radio.NewController(rr, fr, radio.DefaultClockHz)
	require.NoError(t, err)
	require.NoError(t, ctl.WriteControl(1))
	return &rig{p: p, sim: s, ctl: ctl, clock: clock}
}

func TestFifoFillsAtSampleRate(t *testing.T) {
	r := newRig(t, 4, 64)

	occ, err := r.ctl.ReadFifoOccupancy()
	require.NoError(t, err)
	assert.Zero(t, occ)

	r.clock.Advance(10 * time.Second)
	occ, err = r.ctl.ReadFifoOccupancy()
	require.NoError(t, err)
	assert.Equal(t, uint32(40), occ)

	// fractions carry over between reads
	r.clock.Advance(375 * time.Millisecond)
	occ, _ = r.ctl.ReadFifoOccupancy()
	assert.Equal(t, uint32(41), occ)
	r.clock.Advance(125 * time.Millisecond)
	occ, _ = r.ctl.ReadFifoOccupancy()
	assert.Equal(t, uint32(42), occ)

	for i := 0; i < 42; i++ {
		_, err := r.ctl.DrainSample()
		require.NoError(t, err)
	}
	occ, _ = r.ctl.ReadFifoOccupancy()
	assert.Zero(t, occ)
	assert.Equal(t, uint64(42), r.sim.Stats().Produced)
}

func TestOverflowDropsNewSamples(t *testing.T) {
	r := newRig(t, 1000, 16)

	r.sim.Fill(10)
	first, err := r.ctl.DrainSample()
	require.NoError(t, err)
	r.sim.Fill(20)

	st := r.sim.Stats()
	assert.Equal(t, 16, st.Depth)
	assert.Equal(t, uint64(30), st.Produced)
	assert.Equal(t, uint64(13), st.Dropped)

	// a long idle period is capped but still accounted as dropped
	r.clock.Advance(time.Minute)
	occ, err := r.ctl.ReadFifoOccupancy()
	require.NoError(t, err)
	assert.Equal(t, uint32(16), occ)
	assert.Equal(t, uint64(13+60000), r.sim.Stats().Dropped)
	assert.NotZero(t, first)
}

func TestUnderflowReadsZero(t *testing.T) {
	r := newRig(t, 1000, 16)

	v, err := r.ctl.DrainSample()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.Equal(t, uint64(1), r.sim.Stats().Underflows)
}

func TestToneFollowsSourceMinusTuner(t *testing.T) {
	const rate = 100e3
	r := newRig(t, rate, 8192)

	_, err := r.ctl.SetSourceFrequency(1000)
	require.NoError(t, err)
	_, err = r.ctl.SetTunerFrequency(0)
	require.NoError(t, err)
	assert.InDelta(t, 1000, r.sim.ToneHz(), 0.05)

	_, err = r.ctl.SetTunerFrequency(3000)
	require.NoError(t, err)
	assert.InDelta(t, -2000, r.sim.ToneHz(), 0.05)

	_, err = r.ctl.SetTunerFrequency(0)
	require.NoError(t, err)

	// one full cycle of a 1 kHz tone at 100 kS/s is 100 samples
	r.sim.Fill(200)
	samples := make([]uint32, 200)
	for k := range samples {
		samples[k], err = r.ctl.DrainSample()
		require.NoError(t, err)
	}
	for k := 0; k < 100; k++ {
		i0, q0 := Unpack(samples[k])
		i1, q1 := Unpack(samples[k+100])
		assert.InDelta(t, float64(i0), float64(i1), 8, "I at %d", k)
		assert.InDelta(t, float64(q0), float64(q1), 8, "Q at %d", k)
	}

	// constant envelope
	for _, s := range samples {
		i, q := Unpack(s)
		mag := math.Hypot(float64(i), float64(q))
		assert.InDelta(t, amplitude, mag, 4)
	}
}

func TestResetHoldsOutputAtZero(t *testing.T) {
	r := newRig(t, 1000, 64)
	_, err := r.ctl.SetSourceFrequency(100)
	require.NoError(t, err)
	require.NoError(t, r.ctl.WriteControl(0))

	r.sim.Fill(8)
	for i := 0; i < 8; i++ {
		v, err := r.ctl.DrainSample()
		require.NoError(t, err)
		assert.Zero(t, v)
	}
}

func TestTimerAdvancesAtClock(t *testing.T) {
	r := newRig(t, 1000, 16)

	t0, err := r.ctl.ReadTimer()
	require.NoError(t, err)
	r.clock.Advance(time.Second / 2)
	t1, err := r.ctl.ReadTimer()
	require.NoError(t, err)
	assert.Equal(t, uint32(radio.DefaultClockHz/2), t1-t0)

	res, err := r.ctl.Benchmark(16)
	require.NoError(t, err)
	assert.Equal(t, 16, res.Reads)
	assert.Zero(t, res.Clocks)
}

func TestUnpack(t *testing.T) {
	i, q := Unpack(0x8000_7fff)
	assert.Equal(t, int16(32767), i)
	assert.Equal(t, int16(-32768), q)
}
