package iosource

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what Pump moves, labelled by source and dumper path
type Metrics struct {
	PacketsReceived *prometheus.CounterVec
	PacketsWritten  *prometheus.CounterVec
	BytesWritten    *prometheus.CounterVec
	Errors          *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iosource_packets_received_total",
			Help: "Total number of packets read from a source",
		}, []string{"source"}),
		PacketsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iosource_packets_written_total",
			Help: "Total number of packets written to a dumper",
		}, []string{"dumper"}),
		BytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iosource_bytes_written_total",
			Help: "Total number of captured bytes written to a dumper",
		}, []string{"dumper"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iosource_errors_total",
			Help: "Total number of read and write errors",
		}, []string{"path", "op"}),
	}
}

// Register adds all metrics to reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.PacketsReceived, m.PacketsWritten, m.BytesWritten, m.Errors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
