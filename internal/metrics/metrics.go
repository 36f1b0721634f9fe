// Package metrics exposes Prometheus collectors for the molding monitor.
// All helpers are safe to call before Init; they do nothing until then.
package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "molding_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
)

var (
	registerOnce sync.Once

	snapshotTotal   *prometheus.CounterVec
	snapshotLatency *prometheus.HistogramVec
	tickTotal       *prometheus.CounterVec
	tickLatency     prometheus.Histogram
	unitsProduced   *prometheus.CounterVec
	machineStatus   *prometheus.GaugeVec
	eventsPublished *prometheus.CounterVec
	exportTotal     *prometheus.CounterVec
)

// Init registers collectors with the default registry. db, when set,
// backs a gauge of open pending stoppages.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		snapshotTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshots_total",
				Help: "Total pin snapshots by result",
			},
			[]string{"result"},
		)
		snapshotLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "snapshot_latency_seconds",
				Help:    "Snapshot processing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		tickTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_ticks_total",
				Help: "Total reconciliation ticks by result",
			},
			[]string{"result"},
		)
		tickLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reconcile_latency_seconds",
				Help:    "Reconciliation tick latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		unitsProduced = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "units_produced_total",
				Help: "Units credited from cycle pulses by machine",
			},
			[]string{"machine"},
		)
		machineStatus = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "machine_status",
				Help: "Current machine status, 1 for the active status label",
			},
			[]string{"machine", "status"},
		)
		eventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_published_total",
				Help: "Events handed to publishers by sink, type and result",
			},
			[]string{"sink", "event", "result"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "timeline_export_total",
				Help: "Timeline exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			snapshotTotal,
			snapshotLatency,
			tickTotal,
			tickLatency,
			unitsProduced,
			machineStatus,
			eventsPublished,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	pending := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "pending_stoppages",
			Help: "Open unclassified stoppages across all machines",
		},
		func() float64 {
			var n int64
			if err := db.QueryRow("SELECT COUNT(*) FROM stoppage_entries WHERE is_pending = ?", true).Scan(&n); err != nil {
				logger.Printf("metrics: pending stoppages: %v", err)
				return 0
			}
			return float64(n)
		},
	)
	prometheus.MustRegister(pending)
}

// ObserveSnapshot records snapshot processing duration and result.
func ObserveSnapshot(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if snapshotTotal != nil {
		snapshotTotal.WithLabelValues(result).Inc()
	}
	if snapshotLatency != nil {
		snapshotLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveTick records one reconciliation pass.
func ObserveTick(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if tickTotal != nil {
		tickTotal.WithLabelValues(result).Inc()
	}
	if tickLatency != nil {
		tickLatency.Observe(duration.Seconds())
	}
}

// IncUnits counts one unit credited to machine.
func IncUnits(machine string) {
	if unitsProduced != nil {
		unitsProduced.WithLabelValues(machine).Inc()
	}
}

// SetMachineStatus marks status as the machine's current one among all.
func SetMachineStatus(machine, status string, all []string) {
	if machineStatus == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		machineStatus.WithLabelValues(machine, s).Set(v)
	}
}

// IncEventPublished counts an event handed to a sink.
func IncEventPublished(sink, event, result string) {
	if event == "" {
		event = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(sink, event, result).Inc()
	}
}

// ObserveExport counts a timeline export.
func ObserveExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
)
