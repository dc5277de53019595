package radio

import (
	"fmt"
)

// DefaultBenchmarkReads matches the classic 2048-read AXI-lite measurement.
const DefaultBenchmarkReads = 2048

// BenchmarkResult summarizes a register read throughput measurement.
type BenchmarkResult struct {
	Reads      int     `json:"reads"`
	Clocks     uint32  `json:"clocks"`
	Seconds    float64 `json:"seconds"`
	Bytes      int     `json:"bytes"`
	Throughput float64 `json:"throughput_mbps"` // MB/s
}

// Benchmark reads the timer register n times and derives read throughput
// from the elapsed clock count.
func (c *Controller) Benchmark(n int) (*BenchmarkResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("benchmark needs a positive read count, got %d", n)
	}

	start, err := c.ReadTimer()
	if err != nil {
		return nil, fmt.Errorf("read start time: %w", err)
	}
	stop := start
	for i := 0; i < n; i++ {
		if stop, err = c.ReadTimer(); err != nil {
			return nil, fmt.Errorf("read %d: %w", i, err)
		}
	}

	// the counter wraps; unsigned subtraction yields the elapsed clocks
	clocks := stop - start
	res := &BenchmarkResult{
		Reads:   n,
		Clocks:  clocks,
		Seconds: float64(clocks) / c.clockHz,
		Bytes:   4 * n,
	}
	if res.Seconds > 0 {
		res.Throughput = float64(res.Bytes) / res.Seconds / 1e6
	}
	return res, nil
}
