package protocol

import (
	"NWBBenchmarks/internal/core/model"
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrUnsupportedPacket is returned for frames without an IP network layer
// or without a TCP/UDP transport layer.
var ErrUnsupportedPacket = errors.New("unsupported packet")

// ParsePacket uses gopacket to extract the addressing information of a decoded packet.
func ParsePacket(packet gopacket.Packet) (*model.PacketInfo, error) {
	info := &model.PacketInfo{
		Timestamp: time.Now(), // Default to now, will be overwritten by packet metadata if available
		Length:    len(packet.Data()),
	}

	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			info.Timestamp = meta.Timestamp
		}
		// A truncated capture still records the on-wire length.
		if meta.Length > 0 {
			info.Length = meta.Length
		}
	}

	var fiveTuple model.FiveTuple

	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.Protocol)
	case *layers.IPv6:
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.NextHeader)
	default:
		return nil, ErrUnsupportedPacket
	}

	switch tl := packet.TransportLayer().(type) {
	case *layers.TCP:
		fiveTuple.SrcPort = uint16(tl.SrcPort)
		fiveTuple.DstPort = uint16(tl.DstPort)
		fiveTuple.Protocol = uint8(layers.IPProtocolTCP)
	case *layers.UDP:
		fiveTuple.SrcPort = uint16(tl.SrcPort)
		fiveTuple.DstPort = uint16(tl.DstPort)
		fiveTuple.Protocol = uint8(layers.IPProtocolUDP)
	default:
		return nil, ErrUnsupportedPacket
	}

	info.FiveTuple = fiveTuple

	return info, nil
}
