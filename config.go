package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/radiostream/pkg/packet"
	"github.com/radiostream/pkg/radio"
	"github.com/radiostream/pkg/regio"
	"github.com/radiostream/pkg/sim"
	"github.com/radiostream/pkg/stream"
)

// DefaultEndpoint is the receiver the streamer has always targeted.
const DefaultEndpoint = "192.168.1.23:25344"

// Config holds everything the streamer reads at startup.
type Config struct {
	Endpoint             string        `yaml:"endpoint"`
	SamplesPerPacket     int           `yaml:"samples_per_packet"`
	ClockHz              float64       `yaml:"clock_hz"`
	RadioBase            uint32        `yaml:"radio_base"`
	FifoBase             uint32        `yaml:"fifo_base"`
	ControlInit          uint32        `yaml:"control_init"` // written raw at startup
	SourceHz             float64       `yaml:"source_hz"`
	TunerHz              float64       `yaml:"tuner_hz"`
	MaxOccupancyFailures int           `yaml:"max_occupancy_failures"`
	PollInterval         time.Duration `yaml:"poll_interval"` // 0 busy-polls
	MapRetries           uint64        `yaml:"map_retries"`
	Listen               string        `yaml:"listen"` // empty disables HTTP
	LogLevel             string        `yaml:"log_level"`
	Sim                  SimConfig     `yaml:"sim"`
}

// SimConfig enables the in-process radio simulator.
type SimConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
	FifoDepth  int     `yaml:"fifo_depth"`
}

var logLevels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

func defaultConfig() *Config {
	return &Config{
		Endpoint:             DefaultEndpoint,
		SamplesPerPacket:     packet.DefaultSamplesPerPacket,
		ClockHz:              radio.DefaultClockHz,
		RadioBase:            radio.RadioBase,
		FifoBase:             radio.FifoBase,
		ControlInit:          1,
		SourceHz:             1000,
		TunerHz:              0,
		MaxOccupancyFailures: stream.DefaultMaxOccupancyFailures,
		MapRetries:           3,
		Listen:               ":8080",
		LogLevel:             "INFO",
		Sim: SimConfig{
			SampleRate: sim.DefaultSampleRate,
			FifoDepth:  sim.DefaultFifoDepth,
		},
	}
}

// loadConfig reads path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and normalizes the log level.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("endpoint %q: %w", c.Endpoint, err))
	}
	if c.SamplesPerPacket <= 0 {
		errs = append(errs, fmt.Errorf("samples_per_packet %d: %w", c.SamplesPerPacket, packet.ErrInvalidSampleCount))
	}
	if c.ClockHz <= 0 {
		errs = append(errs, fmt.Errorf("clock_hz must be positive, got %g", c.ClockHz))
	}
	if c.RadioBase%regio.WordSize != 0 || c.FifoBase%regio.WordSize != 0 {
		errs = append(errs, fmt.Errorf("peripheral bases must be word aligned"))
	}
	if c.RadioBase == c.FifoBase {
		errs = append(errs, fmt.Errorf("radio_base and fifo_base are both 0x%08x", c.RadioBase))
	}
	if c.MaxOccupancyFailures < 0 {
		errs = append(errs, fmt.Errorf("max_occupancy_failures must not be negative"))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll_interval must not be negative"))
	}

	level := strings.ToUpper(c.LogLevel)
	known := false
	for _, l := range logLevels {
		if l == level {
			known = true
		}
	}
	if !known {
		errs = append(errs, fmt.Errorf("log_level %q is not one of %s", c.LogLevel, strings.Join(logLevels, ", ")))
	}
	c.LogLevel = level

	if c.Sim.Enabled {
		if c.Sim.SampleRate <= 0 {
			errs = append(errs, fmt.Errorf("sim.sample_rate must be positive"))
		}
		if c.Sim.FifoDepth <= 0 {
			errs = append(errs, fmt.Errorf("sim.fifo_depth must be positive"))
		}
	}

	return errors.Join(errs...)
}
