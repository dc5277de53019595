// Package capture records received sample packets to Parquet, one row per
// sample.
package capture

import (
	"encoding/json"
	"io"
	"time"

	"github.com/segmentio/parquet-go"
)

// flushRows bounds the rows buffered before they are handed to the writer.
const flushRows = 8192

// Row is a single received sample, split into its I and Q half-words.
type Row struct {
	Seq   int32 `parquet:"seq"`
	Index int32 `parquet:"index"`
	I     int32 `parquet:"i"`
	Q     int32 `parquet:"q"`
}

// Metadata is stored as JSON under the "capture" key of the file.
type Metadata struct {
	Listen           string    `json:"listen"`
	SamplesPerPacket int       `json:"samples_per_packet"`
	Started          time.Time `json:"started"`
}

// Writer appends packets to a Parquet file.
type Writer struct {
	file    io.Closer
	writer  *parquet.GenericWriter[Row]
	rows    []Row
	packets int
}

// NewWriter creates a Writer on f. Close closes f.
func NewWriter(f io.WriteCloser, meta Metadata) *Writer {
	b, _ := json.Marshal(meta)
	return &Writer{
		file:   f,
		writer: parquet.NewGenericWriter[Row](f, parquet.KeyValueMetadata("capture", string(b))),
		rows:   make([]Row, 0, flushRows),
	}
}

// WritePacket records the samples of one packet.
func (w *Writer) WritePacket(seq uint16, samples []uint32) error {
	for i, s := range samples {
		w.rows = append(w.rows, Row{
			Seq:   int32(seq),
			Index: int32(i),
			I:     int32(int16(uint16(s))),
			Q:     int32(int16(uint16(s >> 16))),
		})
	}
	w.packets++
	if len(w.rows) >= flushRows {
		return w.flush()
	}
	return nil
}

// Packets returns the number of packets written so far.
func (w *Writer) Packets() int { return w.packets }

func (w *Writer) flush() error {
	if len(w.rows) == 0 {
		return nil
	}
	if _, err := w.writer.Write(w.rows); err != nil {
		return err
	}
	w.rows = w.rows[:0]
	return nil
}

// Close flushes buffered rows, finalizes the file and closes it.
func (w *Writer) Close() error {
	if err := w.flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
