package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Бизнес-метрики хранилища документов.
var (
	// operationsTotal — операции save/resolve по результату.
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_store_operations_total",
			Help: "Общее количество операций хранилища документов",
		},
		[]string{"operation", "result"},
	)

	// savedBytesTotal — объём сохранённых документов по категориям.
	savedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_saved_bytes_total",
			Help: "Суммарный объём сохранённых документов в байтах",
		},
		[]string{"category"},
	)

	// metadataCorruptTotal — повреждённые sidecar, обнаруженные при обходе.
	metadataCorruptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ds_metadata_corrupt_total",
			Help: "Количество повреждённых sidecar-файлов, обнаруженных при сканировании",
		},
	)

	// scanDuration — длительность линейного обхода метаданных.
	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ds_metadata_scan_duration_seconds",
			Help:    "Длительность обхода sidecar-файлов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// DocumentsTotal — количество документов по категориям (gauge).
	DocumentsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ds_documents_total",
			Help: "Текущее количество документов в хранилище",
		},
		[]string{"category"},
	)
)

// resultLabel возвращает метку результата операции.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return KindOf(err).String()
}
