package main

import (
	"NWBBenchmarks/internal/core/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortPairs(t *testing.T) {
	pairs, err := parsePortPairs("5000:443, 6000:80")
	require.NoError(t, err)
	assert.Equal(t, []model.PortPair{
		{Local: 5000, Remote: 443}, {Local: 443, Remote: 5000},
		{Local: 6000, Remote: 80}, {Local: 80, Remote: 6000},
	}, pairs)

	for _, bad := range []string{"5000", "5000:https", "70000:1"} {
		_, err := parsePortPairs(bad)
		assert.Error(t, err, bad)
	}
}
