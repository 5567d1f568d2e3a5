package model

import "context"

// Writer persists or forwards measurements.
type Writer interface {
	// Write stores a batch of measurements. An empty batch is a no-op.
	Write(ctx context.Context, measurements []*Measurement) error

	// Name identifies the writer in logs.
	Name() string

	// Close releases connections held by the writer.
	Close() error
}
