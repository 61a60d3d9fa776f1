package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики операций над файлами.
var (
	// operationsTotal — количество операций по типу и результату.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_operations_total",
		Help: "Общее количество операций над файлами",
	}, []string{"operation", "result"})

	// uploadBytesTotal — объём успешно загруженных данных.
	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_upload_bytes_total",
		Help: "Общий объём загруженных файлов в байтах",
	})

	// schemaInferenceDuration — длительность разбора файла.
	schemaInferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sm_schema_inference_duration_seconds",
		Help:    "Длительность определения структуры файла в секундах",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})

	// reconcileRunsTotal — запуски сверки: owner (перед списком) и global (фоновая).
	reconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	}, []string{"scope"})

	// reconcileRemovedTotal — удалённые при сверке записи (record), файлы-сироты (blob)
	// и temp файлы незавершённых записей (stale).
	reconcileRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_reconcile_removed_total",
		Help: "Общее количество объектов, удалённых сверкой",
	}, []string{"kind"})

	// reconcileDurationSeconds — длительность фоновой сверки.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sm_reconcile_duration_seconds",
		Help:    "Длительность фоновой сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

const (
	resultOK    = "ok"
	resultError = "error"
)

func observeOperation(operation string, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}
