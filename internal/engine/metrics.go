package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: время обработки HTTP-запроса по роутам
	RequestDuration *prometheus.HistogramVec

	// Traffic: решения горячего пути и их источник (cache / default)
	DecisionsTotal *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Saturation: размер кэша политик
	CacheEntries prometheus.Gauge

	// Saturation: заполненность буфера отложенной записи (backpressure)
	PersistBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "langcat_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "status"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "langcat_decisions_total",
			Help: "Total number of category decisions by outcome and source.",
		}, []string{"outcome", "source"}), // outcome: allow/deny; source: cache/default

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "langcat_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: store_get, store_set, decode, persist_overflow

		CacheEntries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "langcat_policy_cache_entries",
			Help: "Current number of policies held in the in-process cache.",
		}),

		PersistBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "langcat_persist_buffer_utilization",
			Help: "Current number of pending writes in the persist buffer.",
		}),
	}
}
