package bench

import (
	"NWBBenchmarks/internal/core/model"
	"NWBBenchmarks/internal/tracker"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Runner executes benchmarks and turns every run into a Measurement.
type Runner struct {
	// Track wraps every Run in a network capture session when set.
	Track          bool
	TrackerOptions tracker.Options
	// TrackerOpts customizes the tracker collaborators, mainly for tests.
	TrackerOpts []tracker.Option
	Machine     model.MachineInfo

	now func() time.Time
}

// NewRunner creates a runner for the current machine.
func NewRunner(track bool, opts tracker.Options, machine model.MachineInfo) *Runner {
	return &Runner{Track: track, TrackerOptions: opts, Machine: machine, now: time.Now}
}

// Run executes every benchmark for all parameter combinations and repeats.
// A failing benchmark is recorded in its measurement and does not stop the
// remaining ones; only a cancelled context ends the run early.
func (r *Runner) Run(ctx context.Context, benchmarks []Benchmark) ([]*model.Measurement, error) {
	var results []*model.Measurement
	for _, b := range benchmarks {
		for _, p := range b.Params() {
			for i := 0; i < b.Repeats(); i++ {
				if err := ctx.Err(); err != nil {
					return results, err
				}
				m := r.runOnce(ctx, b, p, i)
				results = append(results, m)

				entry := log.WithFields(log.Fields{
					"benchmark": m.Benchmark,
					"strategy":  m.Strategy,
					"repeat":    i,
					"elapsed":   m.ElapsedSeconds,
					"bytes":     m.Network.BytesTotal,
				})
				if m.Error != "" {
					entry.Warnf("bench: run failed: %s", m.Error)
				} else {
					entry.Info("bench: run finished")
				}
			}
		}
	}
	return results, nil
}

func (r *Runner) runOnce(ctx context.Context, b Benchmark, p Params, repeat int) *model.Measurement {
	m := &model.Measurement{
		ID:        uuid.NewString(),
		Benchmark: b.Name(),
		Strategy:  b.Strategy(),
		Params:    p.Clone(),
		Repeat:    repeat,
		Machine:   r.Machine,
		StartedAt: r.clock().UTC(),
	}

	if err := b.Setup(ctx, p); err != nil {
		m.Error = fmt.Sprintf("setup: %v", err)
		return m
	}
	defer func() {
		if err := b.Teardown(ctx, p); err != nil {
			log.WithField("benchmark", b.Name()).Warnf("bench: teardown failed: %v", err)
		}
	}()

	var elapsed time.Duration
	run := func(ctx context.Context) error {
		start := r.clock()
		err := b.Run(ctx, p)
		elapsed = r.clock().Sub(start)
		return err
	}

	var err error
	if r.Track {
		var t *tracker.Tracker
		t, err = tracker.Track(ctx, r.TrackerOptions, run, r.TrackerOpts...)
		if t != nil {
			m.Network = t.Statistics()
		}
	} else {
		err = run(ctx)
	}

	m.ElapsedSeconds = elapsed.Seconds()
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

func (r *Runner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}
