// Package monitor collects Prometheus metrics for the quoting engine on a
// private registry.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor owns the engine's metric set.
type Monitor struct {
	registry *prometheus.Registry

	cyclesRun     prometheus.Counter
	cyclesSkipped prometheus.Counter
	cyclesFailed  prometheus.Counter

	ordersPlaced    *prometheus.CounterVec
	ordersCollected *prometheus.CounterVec
	placeFailures   prometheus.Counter

	collectedBase  prometheus.Counter
	collectedQuote prometheus.Counter

	reserveBase  prometheus.Gauge
	reserveQuote prometheus.Gauge
	shareSupply  prometheus.Gauge
}

// Config names the metric namespace.
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig returns the standard namespace.
func DefaultConfig() Config {
	return Config{Namespace: "liquidity", Subsystem: "engine"}
}

// New creates a Monitor with its own registry.
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,
		cyclesRun: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "cycles_total", Help: "Completed quote cycles.",
		}),
		cyclesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "cycles_skipped_total", Help: "Cycles skipped by pause or throttle.",
		}),
		cyclesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "cycles_failed_total", Help: "Cycles aborted by an error.",
		}),
		ordersPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_placed_total", Help: "Orders placed, by side.",
		}, []string{"side"}),
		ordersCollected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_collected_total", Help: "Orders collected, by side.",
		}, []string{"side"}),
		placeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "order_place_failures_total", Help: "Order placements rejected by the venue.",
		}),
		collectedBase: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "collected_base_total", Help: "Base units credited by collections.",
		}),
		collectedQuote: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "collected_quote_total", Help: "Quote units credited by collections.",
		}),
		reserveBase: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "reserve_base", Help: "Free base reserves.",
		}),
		reserveQuote: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "reserve_quote", Help: "Free quote reserves.",
		}),
		shareSupply: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "share_supply", Help: "Outstanding pool shares.",
		}),
	}
	return m
}

func (m *Monitor) CycleRun()     { m.cyclesRun.Inc() }
func (m *Monitor) CycleSkipped() { m.cyclesSkipped.Inc() }
func (m *Monitor) CycleFailed()  { m.cyclesFailed.Inc() }

func (m *Monitor) OrderPlaced(side string)    { m.ordersPlaced.WithLabelValues(side).Inc() }
func (m *Monitor) OrderCollected(side string) { m.ordersCollected.WithLabelValues(side).Inc() }
func (m *Monitor) PlaceFailed()               { m.placeFailures.Inc() }

func (m *Monitor) AddCollected(base, quote uint64) {
	m.collectedBase.Add(float64(base))
	m.collectedQuote.Add(float64(quote))
}

func (m *Monitor) SetReserves(base, quote uint64) {
	m.reserveBase.Set(float64(base))
	m.reserveQuote.Set(float64(quote))
}

func (m *Monitor) SetShareSupply(n uint64) { m.shareSupply.Set(float64(n)) }

// Handler serves the registry.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for extra collectors.
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }
