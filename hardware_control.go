package main

import (
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/radiostream/pkg/radio"
	"github.com/radiostream/pkg/regio"
	"github.com/radiostream/pkg/sim"
)

// mapRetryInterval spaces retries of the startup mapping.
var mapRetryInterval = 200 * time.Millisecond

// openProvider returns the register provider for this run: /dev/mem on the
// board, or an in-memory bus driven by the simulator.
func openProvider(cfg *Config) (regio.Provider, *sim.Radio) {
	if !cfg.Sim.Enabled {
		return regio.NewDevMem(), nil
	}
	mem := regio.NewMemoryProvider()
	r := sim.New(mem, sim.Config{
		ClockHz:    cfg.ClockHz,
		SampleRate: cfg.Sim.SampleRate,
		FifoDepth:  cfg.Sim.FifoDepth,
		RadioBase:  cfg.RadioBase,
		FifoBase:   cfg.FifoBase,
	})
	return mem, r
}

// mapWithRetry maps one peripheral, retrying up to cfg.MapRetries times.
// /dev/mem can be briefly busy right after the bitstream loads.
func mapWithRetry(p regio.Provider, phys uint32, retries uint64) (*regio.Region, error) {
	var region *regio.Region
	attempt := 0
	op := func() error {
		attempt++
		r, err := regio.Map(p, phys)
		if err != nil {
			log.Printf("[WARN] map 0x%08x attempt %d: %v", phys, attempt, err)
			return err
		}
		region = r
		return nil
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(mapRetryInterval), retries)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return region, nil
}

// mapPeripherals maps the radio and FIFO blocks. On failure nothing stays mapped.
func mapPeripherals(p regio.Provider, cfg *Config) (radioRegion, fifoRegion *regio.Region, err error) {
	radioRegion, err = mapWithRetry(p, cfg.RadioBase, cfg.MapRetries)
	if err != nil {
		return nil, nil, fmt.Errorf("radio peripheral: %w", err)
	}
	fifoRegion, err = mapWithRetry(p, cfg.FifoBase, cfg.MapRetries)
	if err != nil {
		radioRegion.Unmap()
		return nil, nil, fmt.Errorf("fifo peripheral: %w", err)
	}
	log.Printf("[INFO] mapped radio at 0x%08x and fifo at 0x%08x", cfg.RadioBase, cfg.FifoBase)
	return radioRegion, fifoRegion, nil
}

// initRadio brings the radio out of reset and tunes an audible tone.
func initRadio(ctl *radio.Controller, cfg *Config) error {
	if err := ctl.WriteControl(cfg.ControlInit); err != nil {
		return fmt.Errorf("write control: %w", err)
	}
	if _, err := ctl.SetSourceFrequency(cfg.SourceHz); err != nil {
		return fmt.Errorf("set source frequency: %w", err)
	}
	if _, err := ctl.SetTunerFrequency(cfg.TunerHz); err != nil {
		return fmt.Errorf("set tuner frequency: %w", err)
	}
	log.Printf("[INFO] radio initialized: control=%d source=%g Hz tuner=%g Hz",
		cfg.ControlInit, cfg.SourceHz, cfg.TunerHz)
	return nil
}
