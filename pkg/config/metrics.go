package config

import (
	"context"

	blobs3 "github.com/marmos91/dittodrive/pkg/blob/s3"
	"github.com/marmos91/dittodrive/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Namespace records drive operations (never nil, uses noop if disabled)
	Namespace metrics.NamespaceMetrics

	// Import records import jobs (never nil, uses noop if disabled)
	Import metrics.ImportMetrics

	// S3 records blob store calls (nil if disabled; the S3 store substitutes a noop)
	S3 blobs3.S3Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
//
// health backs the server's /healthz endpoint and may be nil.
func InitializeMetrics(cfg *Config, health func(ctx context.Context) error) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Namespace: metrics.NoopNamespaceMetrics{},
			Import:    metrics.NoopImportMetrics{},
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:   cfg.Server.Metrics.Port,
		Health: health,
	})

	return &MetricsResult{
		Server:    server,
		Namespace: metrics.NewNamespaceMetrics(cfg.Store.Type),
		Import:    metrics.NewImportMetrics(),
		S3:        metrics.NewS3Metrics(),
	}
}
