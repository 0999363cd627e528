package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pumpwatch/pumpwatch/pkg/types"
)

// metrics exports poll results for Prometheus. Each Server carries its own
// registry so tests don't fight over process-global collectors.
type metrics struct {
	registry *prometheus.Registry

	temperature *prometheus.GaugeVec
	energy      *prometheus.GaugeVec
	ratio       *prometheus.GaugeVec
	switchState *prometheus.GaugeVec
	statusState *prometheus.GaugeVec

	portalUp     prometheus.Gauge
	lastPoll     prometheus.Gauge
	pollFailures prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),

		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heatpump_temperature_celsius",
			Help: "Current temperature readings in Celsius",
		}, []string{"sensor"}),

		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heatpump_energy_kwh",
			Help: "Cumulative energy counters in kWh",
		}, []string{"sensor"}),

		ratio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heatpump_performance_ratio",
			Help: "Dimensionless performance readings such as the seasonal performance factor",
		}, []string{"sensor"}),

		switchState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heatpump_switch_state",
			Help: "Switch sensors (1=on, 0=off)",
		}, []string{"sensor"}),

		statusState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heatpump_status_state",
			Help: "Status sensors, 1 for the currently reported state",
		}, []string{"sensor", "state"}),

		portalUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pumpwatch_portal_up",
			Help: "1 if the last poll cycle against the vendor portal succeeded, 0 if it failed",
		}),

		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pumpwatch_last_poll_timestamp_seconds",
			Help: "Unix timestamp of the last successful poll cycle",
		}),

		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pumpwatch_poll_failures_total",
			Help: "Total poll cycles that ended in an error",
		}),
	}

	m.registry.MustRegister(
		m.temperature, m.energy, m.ratio, m.switchState, m.statusState,
		m.portalUp, m.lastPoll, m.pollFailures,
	)
	return m
}

// registerReauthCount exposes an externally tracked re-authentication
// count as a counter. Registered separately because not every Source
// tracks one (the mock doesn't).
func (m *metrics) registerReauthCount(fn func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "pumpwatch_reauthentications_total",
		Help: "Total portal re-authentications after an expired session",
	}, fn))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observe publishes one successful snapshot. Every sensor vector is reset
// first: a sensor absent this cycle must not keep exporting a stale value.
func (m *metrics) observe(snap types.SensorSnapshot) {
	m.temperature.Reset()
	m.energy.Reset()
	m.ratio.Reset()
	m.statusState.Reset()
	m.switchState.Reset()

	for key, r := range snap.Readings {
		info, ok := types.Info(key)
		if !ok {
			continue
		}
		sensor := string(key)
		switch info.Kind {
		case types.KindTemperature:
			m.temperature.WithLabelValues(sensor).Set(r.Value)
		case types.KindEnergy:
			m.energy.WithLabelValues(sensor).Set(r.Value)
		case types.KindRatio:
			m.ratio.WithLabelValues(sensor).Set(r.Value)
		case types.KindSwitch:
			v := 0.0
			if r.Status == types.StatusOn {
				v = 1.0
			}
			m.switchState.WithLabelValues(sensor).Set(v)
		case types.KindStatus:
			m.statusState.WithLabelValues(sensor, string(r.Status)).Set(1)
		}
	}

	m.portalUp.Set(1)
	m.lastPoll.Set(float64(snap.TakenAt.Unix()))
}

func (m *metrics) observeFailure() {
	m.portalUp.Set(0)
	m.pollFailures.Inc()
}
