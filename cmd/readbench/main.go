package main

import (
	"flag"
	"log"

	"github.com/radiostream/pkg/radio"
	"github.com/radiostream/pkg/regio"
	"github.com/radiostream/pkg/sim"
)

func main() {
	reads := flag.Int("n", radio.DefaultBenchmarkReads, "Timer register reads")
	runs := flag.Int("runs", 1, "Number of benchmark runs")
	base := flag.Uint("base", radio.RadioBase, "Radio peripheral base address")
	clockHz := flag.Float64("clock", radio.DefaultClockHz, "Timer clock in Hz")
	isSim := flag.Bool("sim", false, "Benchmark the in-memory simulator instead of /dev/mem")
	flag.Parse()

	var p regio.Provider = regio.NewDevMem()
	if *isSim {
		mem := regio.NewMemoryProvider()
		sim.New(mem, sim.Config{ClockHz: *clockHz, RadioBase: uint32(*base)})
		p = mem
	}

	rr, err := regio.Map(p, uint32(*base))
	if err != nil {
		log.Fatalf("Failed to map radio peripheral: %v", err)
	}
	defer rr.Unmap()

	// the benchmark never touches the FIFO; the radio block stands in for it
	ctl, err := radio.NewController(rr, rr, *clockHz)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}

	log.Printf("Reading timer at 0x%08x %d times per run", uint32(*base)+radio.TimerOffset, *reads)
	var total float64
	for i := 0; i < *runs; i++ {
		res, err := ctl.Benchmark(*reads)
		if err != nil {
			log.Fatalf("Benchmark failed: %v", err)
		}
		log.Printf("Run %d: %d clocks | %.6f s | %d bytes | %.2f MB/s",
			i+1, res.Clocks, res.Seconds, res.Bytes, res.Throughput)
		total += res.Throughput
	}
	if *runs > 1 {
		log.Printf("Mean throughput: %.2f MB/s", total/float64(*runs))
	}
}
