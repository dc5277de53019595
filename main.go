package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/logutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func newLogFilter(level string, w io.Writer) *logutils.LevelFilter {
	levels := make([]logutils.LogLevel, len(logLevels))
	for i, l := range logLevels {
		levels[i] = logutils.LogLevel(l)
	}
	return &logutils.LevelFilter{
		Levels:   levels,
		MinLevel: logutils.LogLevel(level),
		Writer:   w,
	}
}

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	endpoint := flag.String("d", "", "Destination endpoint host:port (overrides config)")
	isSim := flag.Bool("sim", false, "Simulate the radio and FIFO in memory instead of /dev/mem")
	listen := flag.String("listen", "", "HTTP control address, e.g. :8080 (overrides config)")
	samples := flag.Int("samples", 0, "Samples per packet (overrides config)")
	debug := flag.Bool("debug", false, "Log at DEBUG level")
	noShell := flag.Bool("no-shell", false, "Run without the interactive shell until SIGINT/SIGTERM")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  Board:     radiostream -d 192.168.1.23:25344")
		fmt.Fprintln(os.Stderr, "  Simulated: radiostream -sim -d 127.0.0.1:25344")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d":
			cfg.Endpoint = *endpoint
		case "sim":
			cfg.Sim.Enabled = *isSim
		case "listen":
			cfg.Listen = *listen
		case "samples":
			cfg.SamplesPerPacket = *samples
		case "debug":
			if *debug {
				cfg.LogLevel = "DEBUG"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.SetOutput(newLogFilter(cfg.LogLevel, os.Stderr))
	log.Print("[DEBUG] Debug is on")

	provider, simRadio := openProvider(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := openStation(cfg, provider, stationOptions{registry: reg, sim: simRadio})
	if err != nil {
		log.Fatalf("Failed to open radio: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Listen != "" {
		srv := newServer(st, reg)
		go srv.runStatusLoop(ctx, statusInterval)
		go func() {
			if err := srv.serve(ctx, cfg.Listen); err != nil {
				log.Printf("[ERROR] control server: %v", err)
			}
		}()
	}

	if *noShell {
		<-ctx.Done()
	} else {
		done := make(chan error, 1)
		go func() { done <- runShell(st, os.Stdin, os.Stdout) }()
		select {
		case <-ctx.Done():
		case err := <-done:
			if err != nil {
				log.Printf("[ERROR] shell: %v", err)
			}
		}
	}
	stop()

	if err := st.Close(); err != nil {
		log.Printf("[ERROR] shutdown: %v", err)
	}
	log.Print("[INFO] stopped")
}
