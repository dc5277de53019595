package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/radiostream/pkg/packet"
	"github.com/radiostream/pkg/transmit"
)

func main() {
	count := flag.Int("n", 10, "Number of packets to send")
	samples := flag.Int("s", packet.DefaultSamplesPerPacket, "Samples per packet")
	endpoint := flag.String("d", "192.168.1.23:25344", "Destination endpoint")
	interval := flag.Duration("i", 0, "Delay between packets (0 sends back to back)")
	flag.Parse()

	asm, err := packet.NewAssembler(*samples)
	if err != nil {
		log.Fatalf("Invalid packet size: %v", err)
	}
	tx, err := transmit.DialUDP(*endpoint)
	if err != nil {
		log.Fatalf("Failed to open socket: %v", err)
	}
	defer tx.Close()

	log.Printf("Sending %d packets of %d bytes to %s", *count, asm.Size(), tx.Endpoint())

	buf := make([]uint32, asm.Samples())
	out := make([]byte, 0, asm.Size())
	failed := 0
	start := time.Now()
	for i := 0; i < *count; i++ {
		for j := range buf {
			buf[j] = rand.Uint32()
		}
		// sequence numbers wrap at 16 bits like the streamer's
		out = asm.Append(out[:0], uint16(i), buf)
		if err := tx.Send(out); err != nil {
			failed++
			log.Printf("Packet %d: %v", i, err)
		}
		if *interval > 0 {
			time.Sleep(*interval)
		}
	}

	elapsed := time.Since(start)
	log.Printf("Sent %d packets (%d failed) in %v", *count-failed, failed, elapsed)
}
