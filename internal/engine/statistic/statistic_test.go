package statistic

import (
	"NWBBenchmarks/internal/core/model"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkt(src string, length int) *model.PacketInfo {
	return &model.PacketInfo{
		FiveTuple: model.FiveTuple{SrcIP: net.ParseIP(src), DstIP: net.ParseIP("192.0.2.1")},
		Length:    length,
	}
}

func TestGetStatistics_UploadDownloadSplit(t *testing.T) {
	local := []string{"10.0.0.2", "fe80::1"}
	packets := []*model.PacketInfo{
		pkt("10.0.0.2", 100),
		pkt("10.0.0.2", 200),
		pkt("1.1.1.1", 50),
	}

	stats := GetStatistics(packets, local)

	assert.Equal(t, int64(300), stats.BytesUploaded)
	assert.Equal(t, int64(50), stats.BytesDownloaded)
	assert.Equal(t, int64(350), stats.BytesTotal)
	assert.Equal(t, int64(3), stats.NumberOfPackets)
	assert.Equal(t, int64(2), stats.NumberOfPacketsUploaded)
	assert.Equal(t, int64(1), stats.NumberOfPacketsDownloaded)
	assert.Zero(t, stats.TotalTimeSeconds)
}

func TestGetStatistics_DirectionsAddUpToTotal(t *testing.T) {
	local := []string{"192.168.1.5", "2001:db8::5"}
	packets := []*model.PacketInfo{
		pkt("192.168.1.5", 60),
		pkt("93.184.216.34", 1514),
		pkt("2001:db8::5", 86),
		pkt("2001:db8::99", 1294),
		pkt("93.184.216.34", 1514),
	}

	stats := GetStatistics(packets, local)

	assert.Equal(t, stats.BytesTotal, stats.BytesDownloaded+stats.BytesUploaded)
	assert.Equal(t, stats.NumberOfPackets, stats.NumberOfPacketsDownloaded+stats.NumberOfPacketsUploaded)
}

func TestGetStatistics_Empty(t *testing.T) {
	for _, packets := range [][]*model.PacketInfo{nil, {}} {
		stats := GetStatistics(packets, nil)
		assert.Equal(t, model.NetworkStatistics{}, stats)

		m := stats.AsMap()
		require.Len(t, m, 7)
		for k, v := range m {
			assert.Zero(t, v, k)
		}
	}
}

func TestGetStatistics_WithTotalTime(t *testing.T) {
	stats := GetStatistics(nil, []string{}).WithTotalTime(1500 * time.Millisecond)
	assert.InDelta(t, 1.5, stats.TotalTimeSeconds, 1e-9)
	assert.InDelta(t, 1.5, stats.AsMap()[model.KeyNetworkTotalTime], 1e-9)
}

func TestGetStatistics_PacketWithoutSourceAddress(t *testing.T) {
	packets := []*model.PacketInfo{
		pkt("10.0.0.2", 100),
		{Length: 42},
		nil,
	}

	stats := GetStatistics(packets, []string{"10.0.0.2"})

	assert.Equal(t, int64(142), stats.BytesTotal)
	assert.Equal(t, int64(2), stats.NumberOfPackets)
	assert.Equal(t, int64(100), stats.BytesUploaded)
	assert.Zero(t, stats.BytesDownloaded)
	assert.Zero(t, stats.NumberOfPacketsDownloaded)
}

func TestAggregates(t *testing.T) {
	local := []string{"10.0.0.2"}
	packets := []*model.PacketInfo{pkt("10.0.0.2", 10), pkt("8.8.8.8", 20), pkt("8.8.4.4", 30)}

	assert.Equal(t, int64(3), NumPackets(packets))
	assert.Equal(t, int64(60), TotalBytes(packets))
	assert.Equal(t, int64(10), BytesUploaded(packets, local))
	assert.Equal(t, int64(50), BytesDownloaded(packets, local))
	assert.Equal(t, int64(1), NumPacketsUploaded(packets, local))
	assert.Equal(t, int64(2), NumPacketsDownloaded(packets, local))
}

func TestAddressSet_NormalizesAddresses(t *testing.T) {
	set := NewAddressSet([]string{"2001:0db8:0000::0001", "not-an-ip", "10.0.0.2"})

	assert.Len(t, set, 2)
	assert.True(t, set.Contains(net.ParseIP("2001:db8::1")))
	assert.True(t, set.Contains(net.IPv4(10, 0, 0, 2)))
	assert.False(t, set.Contains(nil))
}
