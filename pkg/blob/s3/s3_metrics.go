package s3

import "time"

// S3Metrics provides observability for S3 operations.
//
// This is optional - if not provided, metrics collection is skipped.
type S3Metrics interface {
	// ObserveOperation records an S3 operation with its duration and outcome
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordCopiedBytes records the size of an object copied into storage
	RecordCopiedBytes(bytes int64)
}

// noopMetrics is a default no-op metrics implementation
type noopMetrics struct{}

func (noopMetrics) ObserveOperation(operation string, duration time.Duration, err error) {}
func (noopMetrics) RecordCopiedBytes(bytes int64)                                        {}
