package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "radiostream"
	subsystem = "stream"
)

type metrics struct {
	packets          prometheus.Counter
	bytes            prometheus.Counter
	sendFailures     prometheus.Counter
	registerFailures *prometheus.CounterVec
	sessions         *prometheus.CounterVec
	occupancy        prometheus.Gauge
	running          prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		packets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Packets handed to the transport without a local error.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Packet bytes handed to the transport without a local error.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_failures_total",
			Help:      "Packets the transport rejected locally.",
		}),
		registerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "register_failures_total",
			Help:      "Failed FIFO register reads, by operation.",
		}, []string{"op"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_ended_total",
			Help:      "Stream sessions that ended, by reason.",
		}, []string{"reason"}),
		occupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fifo_occupancy_words",
			Help:      "Last FIFO occupancy read by the streaming loop.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "running",
			Help:      "1 while a streaming session is active.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.packets, m.bytes, m.sendFailures, m.registerFailures,
			m.sessions, m.occupancy, m.running)
	}
	return m
}
