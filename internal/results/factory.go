package results

import (
	"NWBBenchmarks/internal/config"
	"NWBBenchmarks/internal/core/model"
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// WriterFactory creates a writer from the configuration.
type WriterFactory func(ctx context.Context, cfg *config.Config) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

func init() {
	RegisterWriter("json", func(ctx context.Context, cfg *config.Config) (model.Writer, error) {
		return NewJSONWriter(cfg.JSON.RootPath), nil
	})
	RegisterWriter("clickhouse", func(ctx context.Context, cfg *config.Config) (model.Writer, error) {
		return NewClickHouseWriter(ctx, cfg.ClickHouse)
	})
	RegisterWriter("nats", func(ctx context.Context, cfg *config.Config) (model.Writer, error) {
		return NewPublisher(cfg.NATS)
	})
}

// CreateWriters creates every enabled writer of the runner configuration.
// Writers created before a failure are closed.
func CreateWriters(ctx context.Context, cfg *config.Config) ([]model.Writer, error) {
	var writers []model.Writer
	for _, def := range cfg.Runner.Writers {
		if !def.Enabled {
			continue
		}
		log.Infof("Creating writer of type: '%s'", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			closeAll(writers)
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}
		w, err := factory(ctx, cfg)
		if err != nil {
			closeAll(writers)
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, w)
	}
	return writers, nil
}

func closeAll(writers []model.Writer) error {
	var errs []error
	for _, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Fanout writes every batch to all writers concurrently.
type Fanout struct {
	writers []model.Writer
}

// NewFanout combines writers.
func NewFanout(writers ...model.Writer) *Fanout {
	return &Fanout{writers: writers}
}

func (f *Fanout) Name() string { return "fanout" }

// Write returns the first writer error; every writer still gets the batch.
func (f *Fanout) Write(ctx context.Context, measurements []*model.Measurement) error {
	var g errgroup.Group
	for _, w := range f.writers {
		w := w
		g.Go(func() error {
			if err := w.Write(ctx, measurements); err != nil {
				log.WithField("writer", w.Name()).Errorf("Failed to write %d measurements: %v", len(measurements), err)
				return fmt.Errorf("%s: %w", w.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every writer.
func (f *Fanout) Close() error {
	return closeAll(f.writers)
}
