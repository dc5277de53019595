package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tone(n int, hz, rate, amp float64) []uint32 {
	out := make([]uint32, n)
	for k := range out {
		theta := 2 * math.Pi * hz * float64(k) / rate
		i := int16(math.Round(amp * math.Cos(theta)))
		q := int16(math.Round(amp * math.Sin(theta)))
		out[k] = uint32(uint16(i)) | uint32(uint16(q))<<16
	}
	return out
}

func TestPeakTone(t *testing.T) {
	const rate = 256e3

	// bin-centred tones: 256 samples give 1 kHz bins
	hz, dbfs, ok := peakTone(tone(256, 10e3, rate, 16384), rate)
	assert.True(t, ok)
	assert.Equal(t, 10e3, hz)
	assert.InDelta(t, -6.02, dbfs, 0.1)

	hz, _, ok = peakTone(tone(256, -25e3, rate, 16384), rate)
	assert.True(t, ok)
	assert.Equal(t, -25e3, hz)

	// a partial trailing block is ignored
	hz, _, ok = peakTone(tone(300, 3e3, rate, 30000), rate)
	assert.True(t, ok)
	assert.Equal(t, 3e3, hz)
}

func TestPeakToneNeedsSamples(t *testing.T) {
	_, _, ok := peakTone(make([]uint32, 7), 1e6)
	assert.False(t, ok)
}

func TestPeakToneSilence(t *testing.T) {
	_, dbfs, ok := peakTone(make([]uint32, 64), 1e6)
	assert.True(t, ok)
	assert.True(t, math.IsInf(dbfs, -1))
}
