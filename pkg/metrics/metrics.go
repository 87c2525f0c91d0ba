package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	testbedManager = "testbed_manager"

	// Snapshot metrics
	snapshotFetchesTotal = "snapshot_fetches_total"

	// Index metrics
	IndexedRecordsCount = "indexed_records_count"

	// Labels
	snapshotFetchStatusLabel = "status"
	recordKindLabel          = "kind"
)

const (
	FetchSuccess = "success"
	FetchFailure = "failure"
)

var snapshotFetchesTotalLabels = []string{
	snapshotFetchStatusLabel,
}

var indexedRecordsCountLabels = []string{
	recordKindLabel,
}

/**
* Metrics definition
**/
var snapshotFetchesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: testbedManager,
		Name:      snapshotFetchesTotal,
		Help:      "number of topology snapshot fetches by status",
	},
	snapshotFetchesTotalLabels,
)

var indexedRecordsCountMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: testbedManager,
		Name:      IndexedRecordsCount,
		Help:      "metrics to record the number of indexed records per kind",
	},
	indexedRecordsCountLabels,
)

func IncreaseSnapshotFetchesTotalMetric(status string) {
	labels := prometheus.Labels{
		snapshotFetchStatusLabel: status,
	}
	snapshotFetchesTotalMetric.With(labels).Inc()
}

func UpdateIndexedRecordsCountMetric(kind string, count int) {
	labels := prometheus.Labels{
		recordKindLabel: kind,
	}
	indexedRecordsCountMetric.With(labels).Set(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(snapshotFetchesTotalMetric)
	prometheus.MustRegister(indexedRecordsCountMetric)
}
