package bench

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/spf13/cast"
)

// Params is one parameter combination of a benchmark.
type Params map[string]string

// Int64 returns the named parameter as an integer, or def when it is unset.
func (p Params) Int64(name string, def int64) (int64, error) {
	raw, ok := p[name]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s': %w", name, err)
	}
	return v, nil
}

// Clone returns a copy of p.
func (p Params) Clone() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// RemoteFile is an opened remote file.
type RemoteFile interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Strategy opens remote files. Implementations are the I/O backends
// being compared.
type Strategy interface {
	Name() string
	Open(ctx context.Context, url string) (RemoteFile, error)
}

// StrategyFactory creates a strategy for one parameter combination.
type StrategyFactory func(client *http.Client, params Params) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]StrategyFactory)
)

// RegisterStrategy registers a strategy under name.
func RegisterStrategy(name string, factory StrategyFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("strategy '%s' already registered", name))
	}
	registry[name] = factory
}

// NewStrategy creates the strategy registered under name.
func NewStrategy(name string, client *http.Client, params Params) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy: '%s'", name)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return factory(client, params)
}

// Strategies returns the registered strategy names, sorted.
func Strategies() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterStrategy(RangeStrategyName, func(client *http.Client, params Params) (Strategy, error) {
		return NewRangeReadStrategy(client), nil
	})
	RegisterStrategy(CachedRangeStrategyName, func(client *http.Client, params Params) (Strategy, error) {
		blockSize, err := params.Int64("block_size", DefaultBlockSize)
		if err != nil {
			return nil, err
		}
		blocks, err := params.Int64("cache_blocks", DefaultCacheBlocks)
		if err != nil {
			return nil, err
		}
		return NewCachedRangeReadStrategy(client, blockSize, int(blocks))
	})
}
