package metrics

import (
	"sync"
	"time"

	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NamespaceMetrics provides observability for drive service operations.
//
// This interface is optional - if not provided to the drive service,
// operations proceed without metrics collection.
type NamespaceMetrics interface {
	// RecordOperation records a completed service operation.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "NewFolder", "GetDirectory")
	//   - duration: Time taken, including persistence for mutations
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordPersist records one durable write.
	//
	// Parameters:
	//   - mode: "save" for a full snapshot, "apply" for an incremental change
	//   - duration: Time taken by the store
	//   - err: Error if the write failed
	RecordPersist(mode string, duration time.Duration, err error)

	// SetTreeStats publishes the current size of the namespace.
	SetTreeStats(stats namespace.Stats)
}

type namespaceCollectors struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	persistTotal      *prometheus.CounterVec
	persistDuration   *prometheus.HistogramVec
	nodes             *prometheus.GaugeVec
	bytes             *prometheus.GaugeVec
}

var (
	nsCollectors     *namespaceCollectors
	nsCollectorsOnce sync.Once
)

// namespaceMetrics is the Prometheus implementation of NamespaceMetrics.
type namespaceMetrics struct {
	storeType string
	c         *namespaceCollectors
}

// NewNamespaceMetrics creates a Prometheus-backed NamespaceMetrics instance.
//
// Parameters:
//   - storeType: Persistence backend (e.g., "file", "badger"), used as a label
//
// Returns a no-op implementation if metrics are not enabled.
func NewNamespaceMetrics(storeType string) NamespaceMetrics {
	if !IsEnabled() {
		return NoopNamespaceMetrics{}
	}

	nsCollectorsOnce.Do(func() {
		reg := GetRegistry()
		nsCollectors = &namespaceCollectors{
			operationsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittodrive_namespace_operations_total",
					Help: "Total number of namespace operations by store type, operation, and status",
				},
				[]string{"store_type", "operation", "status"},
			),
			operationDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "dittodrive_namespace_operation_duration_seconds",
					Help: "Duration of namespace operations in seconds",
					Buckets: []float64{
						0.0001, // 100µs
						0.0005, // 500µs
						0.001,  // 1ms
						0.005,  // 5ms
						0.01,   // 10ms
						0.05,   // 50ms
						0.1,    // 100ms
						0.5,    // 500ms
						1.0,    // 1s
					},
				},
				[]string{"store_type", "operation"},
			),
			persistTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittodrive_namespace_persist_total",
					Help: "Total number of durable writes by store type, mode (save, apply), and status",
				},
				[]string{"store_type", "mode", "status"},
			),
			persistDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "dittodrive_namespace_persist_duration_seconds",
					Help: "Duration of durable writes in seconds",
					Buckets: []float64{
						0.0005, // 500µs
						0.001,  // 1ms
						0.005,  // 5ms
						0.01,   // 10ms
						0.05,   // 50ms
						0.1,    // 100ms
						0.5,    // 500ms
						1.0,    // 1s
						5.0,    // 5s
					},
				},
				[]string{"store_type", "mode"},
			),
			nodes: promauto.With(reg).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dittodrive_namespace_nodes",
					Help: "Current number of nodes by kind (folder, file, trashed, external)",
				},
				[]string{"store_type", "kind"},
			),
			bytes: promauto.With(reg).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dittodrive_namespace_file_bytes",
					Help: "Total size in bytes of all files referenced by the namespace",
				},
				[]string{"store_type"},
			),
		}
	})

	return &namespaceMetrics{storeType: storeType, c: nsCollectors}
}

// statusOf maps an error to a low-cardinality status label.
func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	if code, ok := namespace.CodeOf(err); ok {
		return code.String()
	}
	return "error"
}

func (m *namespaceMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.c.operationsTotal.WithLabelValues(m.storeType, operation, statusOf(err)).Inc()
	m.c.operationDuration.WithLabelValues(m.storeType, operation).Observe(duration.Seconds())
}

func (m *namespaceMetrics) RecordPersist(mode string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.c.persistTotal.WithLabelValues(m.storeType, mode, status).Inc()
	m.c.persistDuration.WithLabelValues(m.storeType, mode).Observe(duration.Seconds())
}

func (m *namespaceMetrics) SetTreeStats(stats namespace.Stats) {
	m.c.nodes.WithLabelValues(m.storeType, "folder").Set(float64(stats.Folders))
	m.c.nodes.WithLabelValues(m.storeType, "file").Set(float64(stats.Files))
	m.c.nodes.WithLabelValues(m.storeType, "trashed").Set(float64(stats.Trashed))
	m.c.nodes.WithLabelValues(m.storeType, "external").Set(float64(stats.External))
	m.c.bytes.WithLabelValues(m.storeType).Set(float64(stats.TotalBytes))
}

// NoopNamespaceMetrics discards everything.
type NoopNamespaceMetrics struct{}

func (NoopNamespaceMetrics) RecordOperation(string, time.Duration, error) {}
func (NoopNamespaceMetrics) RecordPersist(string, time.Duration, error)   {}
func (NoopNamespaceMetrics) SetTreeStats(namespace.Stats)                 {}
