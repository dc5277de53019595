package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/radiostream/pkg/packet"
)

func main() {
	listen := flag.String("l", ":25344", "UDP listen address")
	limit := flag.Int("n", 0, "Stop after this many packets (0 runs until interrupted)")
	show := flag.Int("show", 4, "Samples to print per packet")
	verbose := flag.Bool("v", false, "Print every packet")
	output := flag.String("o", "", "Record samples to this Parquet file")
	rate := flag.Float64("rate", 0, "Sample rate in Hz; when set, each report includes the strongest tone")
	flag.Parse()

	conn, err := net.ListenPacket("udp", *listen)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var rec *recorder
	if *output != "" {
		rec = &recorder{path: *output, listen: *listen}
	}

	log.Printf("Listening on %s", conn.LocalAddr())

	var gaps gapTracker
	var malformed uint64
	var samples []uint32
	buf := make([]byte, 65536)
	lastReport := time.Now()
	var lastReceived uint64

	for *limit == 0 || gaps.received < uint64(*limit) {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			log.Printf("Read error: %v", err)
			continue
		}

		var seq uint16
		seq, samples, err = packet.Parse(buf[:n], samples[:0])
		if err != nil {
			malformed++
			log.Printf("Malformed packet from %s: %v", from, err)
			continue
		}

		if skipped := gaps.observe(seq); skipped > 0 {
			log.Printf("Gap: %d packets missing before seq %d", skipped, seq)
		}
		if *verbose {
			k := min(*show, len(samples))
			log.Printf("Seq %5d | %d samples | %08x", seq, len(samples), samples[:k])
		}
		if rec != nil {
			if err := rec.record(seq, samples); err != nil {
				log.Printf("Failed to record packet: %v", err)
				break
			}
		}

		if time.Since(lastReport) > 2*time.Second {
			elapsed := time.Since(lastReport).Seconds()
			pps := float64(gaps.received-lastReceived) / elapsed
			log.Printf("Rate: %.0f packets/s | Received: %d | Lost: %d | Late: %d",
				pps, gaps.received, gaps.lost, gaps.late)
			if *rate > 0 {
				if hz, dbfs, ok := peakTone(samples, *rate); ok {
					log.Printf("Peak: %.1f Hz at %.1f dBFS", hz, dbfs)
				}
			}
			lastReport = time.Now()
			lastReceived = gaps.received
		}
	}

	if rec != nil {
		if n, err := rec.close(); err != nil {
			log.Printf("Failed to finish %s: %v", *output, err)
		} else {
			log.Printf("Recorded %d packets to %s", n, *output)
		}
	}
	log.Printf("Received: %d | Lost: %d | Late: %d | Malformed: %d",
		gaps.received, gaps.lost, gaps.late, malformed)
}
