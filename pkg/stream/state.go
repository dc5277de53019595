package stream

import (
	"errors"
	"fmt"
	"time"
)

// State of the stream controller.
type State int32

const (
	Idle State = iota
	Running
	// Stopping is transient: cancellation was requested and the loop has
	// not yet observed it.
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// StopReason tells why a session ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopRequested
	StopFailed
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopRequested:
		return "requested"
	case StopFailed:
		return "failed"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

var (
	ErrInvalidState   = errors.New("stream: invalid state")
	ErrAlreadyRunning = fmt.Errorf("%w: already running", ErrInvalidState)
	ErrNotRunning     = fmt.Errorf("%w: not running", ErrInvalidState)
)

// Stop records how a session ended.
type Stop struct {
	SessionID string
	Reason    StopReason
	Err       error
	At        time.Time
}

// Stats is a point-in-time snapshot of the controller. Counters are
// cumulative across sessions.
type Stats struct {
	State             string    `json:"state"`
	SessionID         string    `json:"session_id,omitempty"`
	Endpoint          string    `json:"endpoint,omitempty"`
	SamplesPerPacket  int       `json:"samples_per_packet"`
	NextSequence      uint16    `json:"next_sequence"`
	PacketsSent       uint64    `json:"packets_sent"`
	SendFailures      uint64    `json:"send_failures"`
	OccupancyFailures uint64    `json:"occupancy_failures"`
	DrainFailures     uint64    `json:"drain_failures"`
	Polls             uint64    `json:"polls"`
	ActiveLoops       int       `json:"active_loops"`
	LastStopReason    string    `json:"last_stop_reason,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
	LastStopAt        time.Time `json:"last_stop_at,omitzero"`
}
