package pcap

import (
	"NWBBenchmarks/internal/core/model"
	"NWBBenchmarks/internal/engine/protocol"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng files start with a Section Header Block.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader reads packets from a pcap or pcapng capture file.
type Reader struct {
	file     *os.File
	source   packetSource
	linkType func(ci gopacket.CaptureInfo) layers.LinkType
}

// NewReader creates a new capture reader for the given file path.
// The file format is detected from its leading magic bytes.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(file)
	magic, err := br.Peek(4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	r := &Reader{file: file}
	if bytes.Equal(magic, ngMagic) {
		err = r.openNg(br)
	} else {
		err = r.openPcap(br)
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	return r, nil
}

func (r *Reader) openPcap(br io.Reader) error {
	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return err
	}
	linkType := pr.LinkType()
	r.source = pr
	r.linkType = func(gopacket.CaptureInfo) layers.LinkType { return linkType }
	return nil
}

// openNg accepts captures taken on several interfaces at once; each packet
// is decoded with the link type of the interface it was captured on.
func (r *Reader) openNg(br io.Reader) error {
	opts := pcapgo.DefaultNgReaderOptions
	opts.WantMixedLinkType = true
	nr, err := pcapgo.NewNgReader(br, opts)
	if err != nil {
		return err
	}
	r.source = nr
	r.linkType = func(ci gopacket.CaptureInfo) layers.LinkType {
		iface, err := nr.Interface(ci.InterfaceIndex)
		if err != nil {
			return layers.LinkTypeEthernet
		}
		return iface.LinkType
	}
	return nil
}

// Close closes the underlying file.
func (r *Reader) Close() {
	r.file.Close()
}

// ReadPackets reads every frame of the capture and returns the parsed packets
// in file order. Frames without an IP/TCP/UDP header are skipped.
//
// A truncated or corrupt file returns the packets decoded before the failure
// together with the error.
func (r *Reader) ReadPackets() ([]*model.PacketInfo, error) {
	var packets []*model.PacketInfo

	for {
		data, ci, err := r.source.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return packets, nil
		}
		if err != nil {
			return packets, fmt.Errorf("failed to read packet %d: %w", len(packets), err)
		}

		packet := gopacket.NewPacket(data, r.linkType(ci), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		md := packet.Metadata()
		md.CaptureInfo = ci

		info, err := protocol.ParsePacket(packet)
		if err != nil {
			continue
		}
		packets = append(packets, info)
	}
}

// ReadFile is a convenience wrapper that opens, reads and closes a capture file.
func ReadFile(filePath string) ([]*model.PacketInfo, error) {
	r, err := NewReader(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadPackets()
}
