package bench

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const (
	DefaultBlockSize   = 64 * 1024
	DefaultCacheBlocks = 64
)

// CachedRangeReadStrategy reads remote files in fixed-size blocks and keeps
// the most recently fetched blocks in memory.
type CachedRangeReadStrategy struct {
	inner     *RangeReadStrategy
	blockSize int64
	maxBlocks int
}

// NewCachedRangeReadStrategy creates a block-caching range reader.
func NewCachedRangeReadStrategy(client *http.Client, blockSize int64, maxBlocks int) (*CachedRangeReadStrategy, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	if maxBlocks <= 0 {
		return nil, fmt.Errorf("cache must hold at least one block, got %d", maxBlocks)
	}
	return &CachedRangeReadStrategy{
		inner:     NewRangeReadStrategy(client),
		blockSize: blockSize,
		maxBlocks: maxBlocks,
	}, nil
}

func (s *CachedRangeReadStrategy) Name() string { return CachedRangeStrategyName }

// Requests returns the number of HTTP requests issued so far.
func (s *CachedRangeReadStrategy) Requests() int64 { return s.inner.Requests() }

func (s *CachedRangeReadStrategy) Open(ctx context.Context, url string) (RemoteFile, error) {
	f, err := s.inner.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return &cachedFile{
		rangeFile: f.(*rangeFile),
		blockSize: s.blockSize,
		maxBlocks: s.maxBlocks,
		blocks:    make(map[int64][]byte, s.maxBlocks),
	}, nil
}

type cachedFile struct {
	*rangeFile
	blockSize int64
	maxBlocks int

	mu     sync.Mutex
	blocks map[int64][]byte
	order  []int64 // eviction order, oldest first
}

func (f *cachedFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		if pos >= f.size {
			return n, io.EOF
		}
		idx := pos / f.blockSize
		block, err := f.block(idx)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], block[pos-idx*f.blockSize:])
	}
	return n, nil
}

func (f *cachedFile) block(idx int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if b, ok := f.blocks[idx]; ok {
		return b, nil
	}

	start := idx * f.blockSize
	length := f.blockSize
	if start+length > f.size {
		length = f.size - start
	}
	buf := make([]byte, length)
	if _, err := f.strategy.fetch(f.ctx, f.url, buf, start); err != nil {
		return nil, err
	}

	if len(f.order) >= f.maxBlocks {
		delete(f.blocks, f.order[0])
		f.order = f.order[1:]
	}
	f.blocks[idx] = buf
	f.order = append(f.order, idx)
	return buf, nil
}

func (f *cachedFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.blocks)
	f.order = nil
	return nil
}
