package metrics

import (
	"sync"
	"time"

	"github.com/marmos91/dittodrive/pkg/blob/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// s3Metrics is the Prometheus implementation of the s3.S3Metrics interface.
//
// This implementation collects metrics about S3 blob operations including:
//   - Operation counts (HeadObject, CopyObject, ListObjectsV2)
//   - Operation latency
//   - Bytes copied into the storage channel
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	copiedBytes       prometheus.Counter
}

var (
	blobS3     *s3Metrics
	blobS3Once sync.Once
)

// NewS3Metrics creates a Prometheus-backed S3Metrics instance.
//
// Returns nil if metrics are not enabled, which causes the S3 blob store to
// use its built-in no-op implementation.
func NewS3Metrics() s3.S3Metrics {
	if !IsEnabled() {
		return nil
	}

	blobS3Once.Do(func() {
		reg := GetRegistry()
		blobS3 = &s3Metrics{
			operationsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittodrive_blob_s3_operations_total",
					Help: "Total number of S3 blob operations by operation type and status",
				},
				[]string{"operation", "status"},
			),
			operationDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "dittodrive_blob_s3_operation_duration_seconds",
					Help: "Duration of S3 blob operations in seconds",
					Buckets: []float64{
						0.01,  // 10ms
						0.025, // 25ms
						0.05,  // 50ms
						0.1,   // 100ms
						0.25,  // 250ms
						0.5,   // 500ms
						1.0,   // 1s
						2.5,   // 2.5s
						5.0,   // 5s
						10.0,  // 10s
					},
				},
				[]string{"operation"},
			),
			copiedBytes: promauto.With(reg).NewCounter(
				prometheus.CounterOpts{
					Name: "dittodrive_blob_s3_copied_bytes_total",
					Help: "Total bytes copied into the storage channel",
				},
			),
		}
	})

	return blobS3
}

// ObserveOperation implements s3.S3Metrics.ObserveOperation
func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCopiedBytes implements s3.S3Metrics.RecordCopiedBytes
func (m *s3Metrics) RecordCopiedBytes(bytes int64) {
	if bytes > 0 {
		m.copiedBytes.Add(float64(bytes))
	}
}
