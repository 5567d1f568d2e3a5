package api

import (
	"NWBBenchmarks/internal/results"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	got       results.SummaryRequest
	summaries []results.Summary
	err       error
}

func (q *fakeQuerier) Summaries(ctx context.Context, req results.SummaryRequest) ([]results.Summary, error) {
	q.got = req
	return q.summaries, q.err
}

func (q *fakeQuerier) Close() error { return nil }

func TestSummaries(t *testing.T) {
	q := &fakeQuerier{summaries: []results.Summary{{
		Benchmark: "remote_file_read", Strategy: "range", Runs: 3, MeanElapsedSeconds: 1.5, MeanBytesTotal: 2048,
	}}}
	srv := httptest.NewServer(NewRouter(q))
	defer srv.Close()

	body := `{"benchmark":"remote_file_read","since":"2024-03-01T00:00:00Z"}`
	resp, err := http.Post(srv.URL+"/api/v1/summaries", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Summaries []map[string]interface{} `json:"summaries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Summaries, 1)
	assert.Equal(t, "range", out.Summaries[0]["strategy"])
	assert.Equal(t, 3.0, out.Summaries[0]["runs"])

	assert.Equal(t, "remote_file_read", q.got.Benchmark)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), q.got.Since)
}

func TestSummaries_BadRequest(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&fakeQuerier{}))
	defer srv.Close()

	for _, body := range []string{`{not json`, `{"until":"yesterday"}`} {
		resp, err := http.Post(srv.URL+"/api/v1/summaries", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestSummaries_QueryError(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&fakeQuerier{err: errors.New("clickhouse down")}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/summaries", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&fakeQuerier{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/summaries")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
