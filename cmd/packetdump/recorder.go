package main

import (
	"fmt"
	"os"
	"time"

	"github.com/radiostream/pkg/capture"
)

// recorder opens its Parquet file on the first packet, once the packet
// size is known for the file metadata.
type recorder struct {
	path   string
	listen string
	w      *capture.Writer
}

func (r *recorder) record(seq uint16, samples []uint32) error {
	if r.w == nil {
		f, err := os.Create(r.path)
		if err != nil {
			return fmt.Errorf("create %s: %w", r.path, err)
		}
		r.w = capture.NewWriter(f, capture.Metadata{
			Listen:           r.listen,
			SamplesPerPacket: len(samples),
			Started:          time.Now(),
		})
	}
	return r.w.WritePacket(seq, samples)
}

// close finalizes the file. Nothing is written when no packet arrived.
func (r *recorder) close() (packets int, err error) {
	if r.w == nil {
		return 0, nil
	}
	return r.w.Packets(), r.w.Close()
}
