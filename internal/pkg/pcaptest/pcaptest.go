// Package pcaptest builds synthetic frames and capture files for tests and fixtures.
package pcaptest

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Frame describes one synthetic Ethernet frame.
type Frame struct {
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
	UDP     bool
	Payload int // payload size in bytes
	Time    time.Time
}

// ARP returns a frame spec that serializes to a non-IP (ARP) frame.
func ARP() Frame {
	return Frame{}
}

// Build serializes f into raw Ethernet bytes.
func Build(f Frame) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC: net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	if f.SrcIP == "" {
		eth.EthernetType = layers.EthernetTypeARP
		arp := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   eth.SrcMAC,
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{10, 0, 0, 2},
		}
		if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	src, dst := net.ParseIP(f.SrcIP), net.ParseIP(f.DstIP)
	if src == nil || dst == nil {
		return nil, fmt.Errorf("invalid address pair %q -> %q", f.SrcIP, f.DstIP)
	}

	var network gopacket.NetworkLayer
	proto := layers.IPProtocolTCP
	if f.UDP {
		proto = layers.IPProtocolUDP
	}
	if src.To4() != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		network = &layers.IPv4{SrcIP: src.To4(), DstIP: dst.To4(), Version: 4, TTL: 64, Protocol: proto}
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		network = &layers.IPv6{SrcIP: src, DstIP: dst, Version: 6, HopLimit: 64, NextHeader: proto}
	}

	payload := gopacket.Payload(make([]byte, f.Payload))
	var err error
	if f.UDP {
		udp := &layers.UDP{SrcPort: layers.UDPPort(f.SrcPort), DstPort: layers.UDPPort(f.DstPort)}
		udp.SetNetworkLayerForChecksum(network)
		err = gopacket.SerializeLayers(buf, opts, eth, network.(gopacket.SerializableLayer), udp, payload)
	} else {
		tcp := &layers.TCP{SrcPort: layers.TCPPort(f.SrcPort), DstPort: layers.TCPPort(f.DstPort), ACK: true, Window: 14600}
		tcp.SetNetworkLayerForChecksum(network)
		err = gopacket.SerializeLayers(buf, opts, eth, network.(gopacket.SerializableLayer), tcp, payload)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Packet builds f and decodes it back into a gopacket.Packet with capture metadata.
func Packet(f Frame) (gopacket.Packet, error) {
	data, err := Build(f)
	if err != nil {
		return nil, err
	}
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	md := pkt.Metadata()
	md.Timestamp = frameTime(f)
	md.CaptureLength = len(data)
	md.Length = len(data)
	return pkt, nil
}

// WriteFile writes frames to path in classic pcap format.
func WriteFile(path string, frames []Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}
	for _, fr := range frames {
		data, err := Build(fr)
		if err != nil {
			return err
		}
		ci := gopacket.CaptureInfo{Timestamp: frameTime(fr), CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			return err
		}
	}
	return nil
}

// WriteNgFile writes frames to path in pcapng format.
func WriteNgFile(path string, frames []Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	if err != nil {
		return err
	}
	for _, fr := range frames {
		data, err := Build(fr)
		if err != nil {
			return err
		}
		ci := gopacket.CaptureInfo{Timestamp: frameTime(fr), CaptureLength: len(data), Length: len(data), InterfaceIndex: 0}
		if err := w.WritePacket(ci, data); err != nil {
			return err
		}
	}
	return w.Flush()
}

// FrameLen returns the serialized size of f.
func FrameLen(f Frame) int {
	data, err := Build(f)
	if err != nil {
		return 0
	}
	return len(data)
}

func frameTime(f Frame) time.Time {
	if f.Time.IsZero() {
		return time.Unix(1700000000, 0)
	}
	return f.Time
}
