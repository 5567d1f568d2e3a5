// Package bench drives remote-read benchmarks and records one measurement
// per run, including the network traffic the run caused.
package bench

import (
	"NWBBenchmarks/internal/config"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Benchmark is driven by the Runner: Setup, then a measured Run, then
// Teardown, for every parameter combination and repeat.
type Benchmark interface {
	Name() string
	Strategy() string
	Repeats() int
	Params() []Params
	Setup(ctx context.Context, p Params) error
	Run(ctx context.Context, p Params) error
	Teardown(ctx context.Context, p Params) error
}

// ParamURL is the parameter holding the remote file location.
const ParamURL = "url"

// RemoteReadBenchmark opens a remote file with a strategy and reads a number
// of evenly spaced blocks from it.
//
// Params: url, block_size (bytes, default 64KiB), reads (default 1).
// It holds the strategy of the current combination and is not safe for
// concurrent use.
type RemoteReadBenchmark struct {
	def     config.BenchmarkDef
	client  *http.Client
	timeout time.Duration

	strategy Strategy
}

// NewRemoteReadBenchmark creates a benchmark from its config definition.
func NewRemoteReadBenchmark(def config.BenchmarkDef, client *http.Client) (*RemoteReadBenchmark, error) {
	if len(def.URLs) == 0 {
		return nil, fmt.Errorf("benchmark '%s' has no urls", def.Name)
	}
	timeout, err := config.ParseDuration(def.Timeout)
	if err != nil {
		return nil, fmt.Errorf("benchmark '%s': %w", def.Name, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteReadBenchmark{def: def, client: client, timeout: timeout}, nil
}

// FromConfig builds every configured benchmark, rejecting unknown strategies.
func FromConfig(defs []config.BenchmarkDef, client *http.Client) ([]Benchmark, error) {
	known := make(map[string]bool)
	for _, name := range Strategies() {
		known[name] = true
	}

	benchmarks := make([]Benchmark, 0, len(defs))
	for _, def := range defs {
		if !known[def.Strategy] {
			return nil, fmt.Errorf("benchmark '%s': unknown strategy: '%s'", def.Name, def.Strategy)
		}
		b, err := NewRemoteReadBenchmark(def, client)
		if err != nil {
			return nil, err
		}
		benchmarks = append(benchmarks, b)
	}
	return benchmarks, nil
}

func (b *RemoteReadBenchmark) Name() string     { return b.def.Name }
func (b *RemoteReadBenchmark) Strategy() string { return b.def.Strategy }

func (b *RemoteReadBenchmark) Repeats() int {
	if b.def.Repeats < 1 {
		return 1
	}
	return b.def.Repeats
}

// Params returns the cross product of urls and configured parameter sets.
func (b *RemoteReadBenchmark) Params() []Params {
	sets := b.def.Params
	if len(sets) == 0 {
		sets = []map[string]string{{}}
	}
	var all []Params
	for _, url := range b.def.URLs {
		for _, set := range sets {
			p := Params(set).Clone()
			p[ParamURL] = url
			all = append(all, p)
		}
	}
	return all
}

func (b *RemoteReadBenchmark) Setup(ctx context.Context, p Params) error {
	s, err := NewStrategy(b.def.Strategy, b.client, p)
	if err != nil {
		return err
	}
	b.strategy = s
	return nil
}

func (b *RemoteReadBenchmark) Run(ctx context.Context, p Params) error {
	if b.strategy == nil {
		return errors.New("benchmark not set up")
	}
	blockSize, err := p.Int64("block_size", DefaultBlockSize)
	if err != nil {
		return err
	}
	reads, err := p.Int64("reads", 1)
	if err != nil {
		return err
	}
	if blockSize <= 0 || reads <= 0 {
		return fmt.Errorf("block_size and reads must be positive")
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	f, err := b.strategy.Open(ctx, p[ParamURL])
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, blockSize)
	for _, off := range readOffsets(f.Size(), blockSize, reads) {
		if _, err := f.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read at %d: %w", off, err)
		}
	}
	return nil
}

func (b *RemoteReadBenchmark) Teardown(ctx context.Context, p Params) error {
	b.strategy = nil
	return nil
}

// readOffsets spreads n reads of blockSize evenly over a file of size bytes.
func readOffsets(size, blockSize, n int64) []int64 {
	if size <= 0 {
		return nil
	}
	last := size - blockSize
	if last < 0 {
		last = 0
	}
	offsets := make([]int64, n)
	if n == 1 {
		return offsets
	}
	for i := int64(0); i < n; i++ {
		offsets[i] = i * last / (n - 1)
	}
	return offsets
}
