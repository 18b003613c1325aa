package planter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics are exported on /metrics. A nil *Metrics is a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	syncs       *prometheus.CounterVec
	telemetry   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	cycles      *prometheus.CounterVec
	moisture    *prometheus.GaugeVec
	chipTemp    prometheus.Gauge
}

func NewMetrics(planter string) *Metrics {
	labels := prometheus.Labels{"planter": planter}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planter_sync_total", Help: "Parameter sync cycles by result.", ConstLabels: labels,
		}, []string{"result"}),
		telemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planter_telemetry_total", Help: "Telemetry posts by outcome (ok, retried, dropped, skipped).", ConstLabels: labels,
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planter_valve_transitions_total", Help: "Valve transitions by valve and position.", ConstLabels: labels,
		}, []string{"valve", "position"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planter_watering_cycles_total", Help: "Completed watering cycles by source.", ConstLabels: labels,
		}, []string{"source"}),
		moisture: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planter_moisture_percent", Help: "Last normalized moisture per sensor.", ConstLabels: labels,
		}, []string{"sensor"}),
		chipTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planter_chip_temperature_celsius", Help: "Last SoC temperature reported.", ConstLabels: labels,
		}),
	}
	m.Registry.MustRegister(
		m.syncs, m.telemetry, m.transitions, m.cycles, m.moisture, m.chipTemp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) sync(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.syncs.WithLabelValues("ok").Inc()
	} else {
		m.syncs.WithLabelValues("fail").Inc()
	}
}

func (m *Metrics) telemetryResult(result string) {
	if m != nil {
		m.telemetry.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) transition(valve, position string) {
	if m != nil {
		m.transitions.WithLabelValues(valve, position).Inc()
	}
}

func (m *Metrics) cycle(source string) {
	if m != nil {
		m.cycles.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) setMoisture(sensor string, pct float64) {
	if m != nil {
		m.moisture.WithLabelValues(sensor).Set(pct)
	}
}

func (m *Metrics) setChipTemp(c float64) {
	if m != nil {
		m.chipTemp.Set(c)
	}
}
