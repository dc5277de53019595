package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/radiostream/pkg/radio"
	"github.com/radiostream/pkg/regio"
	"github.com/radiostream/pkg/sim"
	"github.com/radiostream/pkg/stream"
	"github.com/radiostream/pkg/transmit"
)

// Station ties the mapped peripherals, the radio controller and the stream
// controller together. The shell and the HTTP API both drive it.
type Station struct {
	cfg     *Config
	radio   *radio.Controller
	stream  *stream.Controller
	sim     *sim.Radio
	regions []*regio.Region
	proc    *process.Process
	started time.Time

	mu         sync.RWMutex
	endpoint   string
	sourceHz   float64
	sourcePinc uint32
	tunerHz    float64
	tunerPinc  uint32
}

// Status is the station snapshot served by the API and pushed over /ws.
type Status struct {
	SourceHz   float64      `json:"source_hz"`
	SourcePinc uint32       `json:"source_pinc"`
	TunerHz    float64      `json:"tuner_hz"`
	TunerPinc  uint32       `json:"tuner_pinc"`
	Muted      bool         `json:"muted"`
	MuteError  string       `json:"mute_error,omitempty"`
	Endpoint   string       `json:"endpoint"`
	Stream     stream.Stats `json:"stream"`
	Sim        *sim.Stats   `json:"sim,omitempty"`
	CPUPercent float64      `json:"cpu_percent"`
	Uptime     string       `json:"uptime"`
}

type stationOptions struct {
	dial     transmit.Dialer
	registry prometheus.Registerer
	sim      *sim.Radio
}

// openStation maps the peripherals, runs the startup sequence and returns
// an idle station.
func openStation(cfg *Config, p regio.Provider, opts stationOptions) (*Station, error) {
	rr, fr, err := mapPeripherals(p, cfg)
	if err != nil {
		return nil, err
	}
	unmap := func() {
		rr.Unmap()
		fr.Unmap()
	}

	ctl, err := radio.NewController(rr, fr, cfg.ClockHz)
	if err != nil {
		unmap()
		return nil, err
	}
	if err := initRadio(ctl, cfg); err != nil {
		unmap()
		return nil, err
	}

	sc, err := stream.New(ctl, stream.Config{
		SamplesPerPacket:     cfg.SamplesPerPacket,
		MaxOccupancyFailures: cfg.MaxOccupancyFailures,
		PollInterval:         cfg.PollInterval,
		Dial:                 opts.dial,
		Registerer:           opts.registry,
	})
	if err != nil {
		unmap()
		return nil, err
	}

	st := &Station{
		cfg:        cfg,
		radio:      ctl,
		stream:     sc,
		sim:        opts.sim,
		regions:    []*regio.Region{rr, fr},
		started:    time.Now(),
		endpoint:   cfg.Endpoint,
		sourceHz:   cfg.SourceHz,
		sourcePinc: radio.PhaseIncrement(cfg.SourceHz, cfg.ClockHz),
		tunerHz:    cfg.TunerHz,
		tunerPinc:  radio.PhaseIncrement(cfg.TunerHz, cfg.ClockHz),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		st.proc = proc
	} else {
		log.Printf("[WARN] process stats unavailable: %v", err)
	}
	return st, nil
}

// SetSource tunes the synthetic source.
func (s *Station) SetSource(hz float64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pinc, err := s.radio.SetSourceFrequency(hz)
	if err != nil {
		return 0, err
	}
	s.sourceHz, s.sourcePinc = hz, pinc
	return pinc, nil
}

// SetTuner tunes the receiver.
func (s *Station) SetTuner(hz float64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pinc, err := s.radio.SetTunerFrequency(hz)
	if err != nil {
		return 0, err
	}
	s.tunerHz, s.tunerPinc = hz, pinc
	return pinc, nil
}

func (s *Station) ToggleMute() (bool, error) { return s.radio.ToggleMute() }

func (s *Station) SetMute(muted bool) error { return s.radio.SetMute(muted) }

func (s *Station) Benchmark(n int) (*radio.BenchmarkResult, error) {
	return s.radio.Benchmark(n)
}

// StartStreaming starts a session to endpoint, or to the configured
// destination when endpoint is empty. A new endpoint becomes the default.
func (s *Station) StartStreaming(endpoint string) error {
	s.mu.Lock()
	if endpoint == "" {
		endpoint = s.endpoint
	}
	s.mu.Unlock()

	if err := s.stream.Start(endpoint); err != nil {
		return err
	}
	s.mu.Lock()
	s.endpoint = endpoint
	s.mu.Unlock()
	return nil
}

func (s *Station) StopStreaming() error { return s.stream.Stop() }

// ToggleStreaming stops a running session or starts one to the current
// endpoint. It reports whether streaming is on afterwards.
func (s *Station) ToggleStreaming() (bool, error) {
	err := s.stream.Stop()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, stream.ErrNotRunning) {
		return true, err
	}
	if err := s.StartStreaming(""); err != nil {
		return false, err
	}
	return true, nil
}

// Status collects a snapshot. Register read failures are reported in the
// snapshot rather than failing it.
func (s *Station) Status() Status {
	s.mu.RLock()
	st := Status{
		SourceHz:   s.sourceHz,
		SourcePinc: s.sourcePinc,
		TunerHz:    s.tunerHz,
		TunerPinc:  s.tunerPinc,
		Endpoint:   s.endpoint,
	}
	s.mu.RUnlock()

	if muted, err := s.radio.MuteState(); err != nil {
		st.MuteError = err.Error()
	} else {
		st.Muted = muted
	}
	st.Stream = s.stream.Stats()
	if s.sim != nil {
		ss := s.sim.Stats()
		st.Sim = &ss
	}
	if s.proc != nil {
		if pct, err := s.proc.CPUPercent(); err == nil {
			st.CPUPercent = pct
		}
	}
	st.Uptime = time.Since(s.started).Truncate(time.Second).String()
	return st
}

// Ready fails while the peripherals are unmapped or the last session was
// halted by a failure and nothing has been started since.
func (s *Station) Ready() error {
	for _, r := range s.regions {
		if !r.Live() {
			return fmt.Errorf("region 0x%08x is unmapped", r.Base())
		}
	}
	if s.stream.State() != stream.Idle {
		return nil
	}
	if last := s.stream.LastStop(); last != nil && last.Reason == stream.StopFailed {
		return fmt.Errorf("stream session %s halted: %w", last.SessionID, last.Err)
	}
	return nil
}

// Close stops streaming, then releases the peripherals. Regions are only
// unmapped once the loop is idle.
func (s *Station) Close() error {
	var errs []error
	if err := s.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, r := range s.regions {
		if err := r.Unmap(); err != nil && !errors.Is(err, regio.ErrReleased) {
			errs = append(errs, err)
		}
	}
	if s.sim != nil {
		s.sim.Detach()
	}
	return errors.Join(errs...)
}
