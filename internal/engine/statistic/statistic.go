// Package statistic derives byte and packet counts from attributed packets.
//
// Direction is decided by the packet's source address: a source that is one of
// the local addresses is an upload, any other source is a download. Packets
// without a source address count towards the totals only.
package statistic

import (
	"NWBBenchmarks/internal/core/model"
	"NWBBenchmarks/internal/probe/connmap"
	"net"
)

// AddressSet is a set of normalized IP address strings.
type AddressSet map[string]struct{}

// NewAddressSet builds a set from textual addresses, ignoring unparsable ones.
func NewAddressSet(addrs []string) AddressSet {
	set := make(AddressSet, len(addrs))
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		set[ip.String()] = struct{}{}
	}
	return set
}

// Contains reports whether ip is in the set.
func (s AddressSet) Contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	_, ok := s[ip.String()]
	return ok
}

// resolve returns the local address set, enumerating interfaces when addrs is nil.
func resolve(addrs []string) AddressSet {
	if addrs == nil {
		addrs = connmap.LocalAddresses()
	}
	return NewAddressSet(addrs)
}

// NumPackets returns the number of packets.
func NumPackets(packets []*model.PacketInfo) int64 {
	var n int64
	for _, p := range packets {
		if p != nil {
			n++
		}
	}
	return n
}

// TotalBytes returns the summed frame length of all packets.
func TotalBytes(packets []*model.PacketInfo) int64 {
	var total int64
	for _, p := range packets {
		if p != nil && p.Length > 0 {
			total += int64(p.Length)
		}
	}
	return total
}

// direction partitions packets into uploads and downloads.
type direction struct {
	upBytes, downBytes     int64
	upPackets, downPackets int64
}

func classify(packets []*model.PacketInfo, local AddressSet) direction {
	var d direction
	for _, p := range packets {
		if p == nil || p.FiveTuple.SrcIP == nil {
			continue
		}
		length := int64(p.Length)
		if length < 0 {
			length = 0
		}
		if local.Contains(p.FiveTuple.SrcIP) {
			d.upBytes += length
			d.upPackets++
		} else {
			d.downBytes += length
			d.downPackets++
		}
	}
	return d
}

// BytesDownloaded sums the packets whose source is not a local address.
// A nil localAddresses enumerates the machine's interfaces.
func BytesDownloaded(packets []*model.PacketInfo, localAddresses []string) int64 {
	return classify(packets, resolve(localAddresses)).downBytes
}

// BytesUploaded sums the packets whose source is a local address.
func BytesUploaded(packets []*model.PacketInfo, localAddresses []string) int64 {
	return classify(packets, resolve(localAddresses)).upBytes
}

// NumPacketsDownloaded counts the packets whose source is not a local address.
func NumPacketsDownloaded(packets []*model.PacketInfo, localAddresses []string) int64 {
	return classify(packets, resolve(localAddresses)).downPackets
}

// NumPacketsUploaded counts the packets whose source is a local address.
func NumPacketsUploaded(packets []*model.PacketInfo, localAddresses []string) int64 {
	return classify(packets, resolve(localAddresses)).upPackets
}

// GetStatistics computes every aggregate in one pass. The elapsed time is left
// at zero; callers attach it with NetworkStatistics.WithTotalTime.
func GetStatistics(packets []*model.PacketInfo, localAddresses []string) model.NetworkStatistics {
	if len(packets) == 0 {
		return model.NetworkStatistics{}
	}
	d := classify(packets, resolve(localAddresses))
	return model.NetworkStatistics{
		BytesDownloaded:           d.downBytes,
		BytesUploaded:             d.upBytes,
		BytesTotal:                TotalBytes(packets),
		NumberOfPackets:           NumPackets(packets),
		NumberOfPacketsDownloaded: d.downPackets,
		NumberOfPacketsUploaded:   d.upPackets,
	}
}
