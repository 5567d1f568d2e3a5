package bench

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
)

const (
	RangeStrategyName       = "range"
	CachedRangeStrategyName = "cached_range"
)

// RangeReadStrategy reads remote files with one HTTP range request per
// ReadAt and no caching.
type RangeReadStrategy struct {
	client   *http.Client
	requests atomic.Int64
}

// NewRangeReadStrategy creates the uncached range reader.
func NewRangeReadStrategy(client *http.Client) *RangeReadStrategy {
	if client == nil {
		client = http.DefaultClient
	}
	return &RangeReadStrategy{client: client}
}

func (s *RangeReadStrategy) Name() string { return RangeStrategyName }

// Requests returns the number of HTTP requests issued so far.
func (s *RangeReadStrategy) Requests() int64 { return s.requests.Load() }

// Open resolves the size of the remote file with a HEAD request.
func (s *RangeReadStrategy) Open(ctx context.Context, url string) (RemoteFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	s.requests.Add(1)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to open %s: %s", url, resp.Status)
	}
	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: no content length", url)
	}
	return &rangeFile{ctx: ctx, strategy: s, url: url, size: size}, nil
}

// fetch reads [off, off+len(p)) of url into p.
func (s *RangeReadStrategy) fetch(ctx context.Context, url string, p []byte, off int64) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))

	s.requests.Add(1)
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// Server ignored the range, skip to the offset.
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("range request for %s: %s", url, resp.Status)
	}
	return io.ReadFull(resp.Body, p)
}

type rangeFile struct {
	ctx      context.Context
	strategy *RangeReadStrategy
	url      string
	size     int64
}

func (f *rangeFile) Size() int64 { return f.size }

func (f *rangeFile) Close() error { return nil }

func (f *rangeFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= f.size {
		return 0, io.EOF
	}
	want := p
	if remain := f.size - off; int64(len(p)) > remain {
		want = p[:remain]
	}
	n, err := f.strategy.fetch(f.ctx, f.url, want, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}
