package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "satbridge_"

const (
	resultOK           = "ok"
	resultInvalid      = "invalid"
	resultTimeout      = "timeout"
	resultConverged    = "converged"
	resultNotConverged = "not_converged"
	resultError        = "error"

	cycleRecord       = "record"
	cycleNoSatellite  = "no_satellite"
	cycleUnavailable  = "unavailable"
	cycleBelowHorizon = "below_horizon"
	cycleError        = "error"
)

// metrics is safe to use as a nil pointer; every method is then a no-op.
type metrics struct {
	registry *prometheus.Registry

	rigQueries      *prometheus.CounterVec
	rigPollErrors   prometheus.Counter
	rigSets         *prometheus.CounterVec
	rigFrequency    prometheus.Gauge
	telemetryCycles *prometheus.CounterVec
	udpReports      *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		rigQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rig_queries_total",
				Help: "CAT queries by command and result",
			},
			[]string{"command", "result"},
		),
		rigPollErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "rig_poll_errors_total",
				Help: "Rig poll cycles that ended in a transport fault",
			},
		),
		rigSets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rig_set_total",
				Help: "Rig set operations by command and result",
			},
			[]string{"command", "result"},
		),
		rigFrequency: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "rig_frequency_hz",
				Help: "Last frequency read from the rig",
			},
		),
		telemetryCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_cycles_total",
				Help: "Telemetry poll cycles by outcome",
			},
			[]string{"outcome"},
		),
		udpReports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "udp_reports_total",
				Help: "UDP radio reports by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.rigQueries,
		m.rigPollErrors,
		m.rigSets,
		m.rigFrequency,
		m.telemetryCycles,
		m.udpReports,
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) rigQuery(command, result string) {
	if m == nil {
		return
	}
	m.rigQueries.WithLabelValues(command, result).Inc()
}

func (m *metrics) rigPollError() {
	if m == nil {
		return
	}
	m.rigPollErrors.Inc()
}

func (m *metrics) rigSet(command, result string) {
	if m == nil {
		return
	}
	m.rigSets.WithLabelValues(command, result).Inc()
}

func (m *metrics) rigFrequencyHz(hz int64) {
	if m == nil {
		return
	}
	m.rigFrequency.Set(float64(hz))
}

func (m *metrics) telemetryCycle(outcome string) {
	if m == nil {
		return
	}
	m.telemetryCycles.WithLabelValues(outcome).Inc()
}

func (m *metrics) udpReport(result string) {
	if m == nil {
		return
	}
	m.udpReports.WithLabelValues(result).Inc()
}
