package main

import (
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiostream/pkg/packet"
	"github.com/radiostream/pkg/radio"
	"github.com/radiostream/pkg/regio"
	"github.com/radiostream/pkg/sim"
	"github.com/radiostream/pkg/stream"
)

type testRig struct {
	cfg *Config
	st  *Station
	mem *regio.MemoryProvider
	reg *prometheus.Registry
}

// newTestStation opens a simulated station. The default endpoint is the
// discard port; tests that read packets point it at a loopback listener.
func newTestStation(t *testing.T, mutate func(*Config)) *testRig {
	t.Helper()
	cfg := defaultConfig()
	cfg.Sim.Enabled = true
	cfg.Sim.SampleRate = 2e6
	cfg.Endpoint = "127.0.0.1:9"
	cfg.SamplesPerPacket = 64
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	p, r := openProvider(cfg)
	reg := prometheus.NewRegistry()
	st, err := openStation(cfg, p, stationOptions{registry: reg, sim: r})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return &testRig{cfg: cfg, st: st, mem: p.(*regio.MemoryProvider), reg: reg}
}

func listenLoopback(t *testing.T) net.PacketConn {
	t.Helper()
	rx, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { rx.Close() })
	require.NoError(t, rx.SetReadDeadline(time.Now().Add(10*time.Second)))
	return rx
}

func TestStartupSequence(t *testing.T) {
	rig := newTestStation(t, func(c *Config) {
		c.SourceHz = 1200
		c.TunerHz = 200
	})

	assert.Equal(t, uint32(1), rig.mem.Peek(radio.RadioBase+radio.ControlOffset))
	assert.Equal(t, radio.PhaseIncrement(1200, radio.DefaultClockHz), rig.mem.Peek(radio.RadioBase+radio.SourcePincOffset))
	assert.Equal(t, radio.PhaseIncrement(200, radio.DefaultClockHz), rig.mem.Peek(radio.RadioBase+radio.TunerPincOffset))
	assert.Equal(t, 1, rig.mem.Mapped(radio.RadioBase))
	assert.Equal(t, 1, rig.mem.Mapped(radio.FifoBase))

	st := rig.st.Status()
	assert.Equal(t, 1200.0, st.SourceHz)
	assert.True(t, st.Muted)
	assert.Equal(t, "idle", st.Stream.State)
	require.NotNil(t, st.Sim)
	assert.NoError(t, rig.st.Ready())
}

func TestStreamSimulatedSamplesOverUDP(t *testing.T) {
	rx := listenLoopback(t)
	rig := newTestStation(t, func(c *Config) {
		c.Endpoint = rx.LocalAddr().String()
		c.SamplesPerPacket = packet.DefaultSamplesPerPacket
	})

	require.NoError(t, rig.st.StartStreaming(""))

	buf := make([]byte, 2048)
	last := -1
	for i := 0; i < 20; i++ {
		n, _, err := rx.ReadFrom(buf)
		require.NoError(t, err)
		require.Equal(t, 1026, n)

		seq, samples, err := packet.Parse(buf[:n], nil)
		require.NoError(t, err)
		assert.Greater(t, int(seq), last)
		last = int(seq)

		// the simulator emits a full-scale tone
		i0, q0 := sim.Unpack(samples[0])
		assert.InDelta(t, 32000, math.Hypot(float64(i0), float64(q0)), 4)
	}

	require.NoError(t, rig.st.StopStreaming())
	stats := rig.st.stream.Stats()
	assert.Equal(t, "idle", stats.State)
	assert.GreaterOrEqual(t, stats.PacketsSent, uint64(20))
	assert.Equal(t, "requested", stats.LastStopReason)
}

func TestCloseStopsBeforeUnmapping(t *testing.T) {
	rig := newTestStation(t, nil)
	require.NoError(t, rig.st.StartStreaming(""))
	require.Eventually(t, func() bool { return rig.st.stream.Stats().Polls > 10 }, 5*time.Second, time.Millisecond)

	require.NoError(t, rig.st.Close())
	assert.Equal(t, stream.Idle, rig.st.stream.State())
	assert.Equal(t, stream.StopRequested, rig.st.stream.LastStop().Reason)
	assert.Zero(t, rig.mem.Mapped(radio.RadioBase))
	assert.Zero(t, rig.mem.Mapped(radio.FifoBase))
	assert.Error(t, rig.st.Ready())
}

func TestDrainFailureMarksStationNotReady(t *testing.T) {
	rig := newTestStation(t, nil)
	rig.mem.OnRead(radio.FifoBase+radio.CurrentSampleOffset, func(uint32) (uint32, error) {
		return 0, errors.New("AXI slave error")
	})

	require.NoError(t, rig.st.StartStreaming(""))
	select {
	case <-rig.st.stream.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not halt")
	}

	err := rig.st.Ready()
	require.Error(t, err)
	assert.ErrorIs(t, err, regio.ErrRead)

	// a fresh session clears the condition
	rig.mem.OnRead(radio.FifoBase+radio.CurrentSampleOffset, nil)
	require.NoError(t, rig.st.StartStreaming(""))
	assert.NoError(t, rig.st.Ready())
}

func TestToggleStreaming(t *testing.T) {
	rig := newTestStation(t, nil)

	on, err := rig.st.ToggleStreaming()
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, stream.Running, rig.st.stream.State())

	on, err = rig.st.ToggleStreaming()
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, stream.Idle, rig.st.stream.State())
}

func TestStartStreamingRemembersEndpoint(t *testing.T) {
	rig := newTestStation(t, nil)

	require.NoError(t, rig.st.StartStreaming("127.0.0.1:7"))
	require.NoError(t, rig.st.StopStreaming())
	assert.Equal(t, "127.0.0.1:7", rig.st.Status().Endpoint)

	// a failed start keeps the previous endpoint
	assert.Error(t, rig.st.StartStreaming("no-port"))
	assert.Equal(t, "127.0.0.1:7", rig.st.Status().Endpoint)
}
