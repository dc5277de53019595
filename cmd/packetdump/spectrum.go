package main

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// peakTone finds the strongest tone in packed I/Q samples (I low, Q high
// half-word) taken at sampleRate. It uses the largest power-of-two prefix of
// samples. Level is relative to a full-scale 16-bit tone.
func peakTone(samples []uint32, sampleRate float64) (hz, dbfs float64, ok bool) {
	n := 1
	for n*2 <= len(samples) {
		n *= 2
	}
	if n < 8 {
		return 0, 0, false
	}

	w := window.Blackman(n)
	windowSum := 0.0
	input := make([]complex128, n)
	for i := range input {
		iv := float64(int16(uint16(samples[i])))
		qv := float64(int16(uint16(samples[i] >> 16)))
		input[i] = complex(iv*w[i], qv*w[i])
		windowSum += w[i]
	}
	out := fft.FFT(input)

	peak, peakMag := 0, -1.0
	for i, v := range out {
		if m := cmplx.Abs(v); m > peakMag {
			peak, peakMag = i, m
		}
	}

	// bins above n/2 are negative frequencies
	bin := peak
	if bin >= n/2 {
		bin -= n
	}
	hz = float64(bin) * sampleRate / float64(n)

	const fullScale = 32768.0
	if peakMag > 0 {
		dbfs = 20 * math.Log10(peakMag/(fullScale*windowSum))
	} else {
		dbfs = math.Inf(-1)
	}
	return hz, dbfs, true
}
