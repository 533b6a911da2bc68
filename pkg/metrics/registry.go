// Package metrics provides Prometheus metrics collection for the drive.
//
// All metrics are optional - if the registry is not initialized, constructors
// return no-op implementations, so the drive runs the same with or without
// collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	svc, err := drive.Open(ctx, st, drive.Options{Metrics: metrics.NewNamespaceMetrics("badger")})
//	imp := importer.New(svc, src, copier, importer.Options{Metrics: metrics.NewImportMetrics()})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read everywhere else
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// Call it before creating any metrics instances. Repeated calls are ignored.
// Go runtime and process collectors are registered alongside drive metrics.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
