package model

import (
	"net"
	"time"
)

// FiveTuple represents the 5-tuple of a captured packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8 // e.g., TCP, UDP
}

// PacketInfo holds the metadata extracted from a single captured frame.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
}

// PortPair is one orientation of a connection's (local, remote) port pair.
type PortPair struct {
	Local  uint16
	Remote uint16
}

// Reverse returns the pair with both sides swapped.
func (p PortPair) Reverse() PortPair {
	return PortPair{Local: p.Remote, Remote: p.Local}
}

// Ports returns the (source, destination) pair of a packet.
func (p *PacketInfo) Ports() PortPair {
	return PortPair{Local: p.FiveTuple.SrcPort, Remote: p.FiveTuple.DstPort}
}

// Keys used when network statistics are flattened for a benchmark harness.
const (
	KeyBytesDownloaded           = "bytes_downloaded"
	KeyBytesUploaded             = "bytes_uploaded"
	KeyBytesTotal                = "bytes_total"
	KeyNumberOfPackets           = "number_of_packets"
	KeyNumberOfPacketsDownloaded = "number_of_packets_downloaded"
	KeyNumberOfPacketsUploaded   = "number_of_packets_uploaded"
	KeyNetworkTotalTime          = "network_total_time_in_seconds"
)

// NetworkStatistics is the traffic attributed to one process during one capture session.
type NetworkStatistics struct {
	BytesDownloaded           int64   `json:"bytes_downloaded"`
	BytesUploaded             int64   `json:"bytes_uploaded"`
	BytesTotal                int64   `json:"bytes_total"`
	NumberOfPackets           int64   `json:"number_of_packets"`
	NumberOfPacketsDownloaded int64   `json:"number_of_packets_downloaded"`
	NumberOfPacketsUploaded   int64   `json:"number_of_packets_uploaded"`
	TotalTimeSeconds          float64 `json:"network_total_time_in_seconds"`
}

// WithTotalTime returns a copy of s carrying the elapsed wall time of the session.
func (s NetworkStatistics) WithTotalTime(d time.Duration) NetworkStatistics {
	s.TotalTimeSeconds = d.Seconds()
	return s
}

// AsMap flattens the statistics. Every key is always present.
func (s NetworkStatistics) AsMap() map[string]float64 {
	return map[string]float64{
		KeyBytesDownloaded:           float64(s.BytesDownloaded),
		KeyBytesUploaded:             float64(s.BytesUploaded),
		KeyBytesTotal:                float64(s.BytesTotal),
		KeyNumberOfPackets:           float64(s.NumberOfPackets),
		KeyNumberOfPacketsDownloaded: float64(s.NumberOfPacketsDownloaded),
		KeyNumberOfPacketsUploaded:   float64(s.NumberOfPacketsUploaded),
		KeyNetworkTotalTime:          s.TotalTimeSeconds,
	}
}

// MachineInfo describes the host a measurement was taken on.
type MachineInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Arch            string `json:"arch"`
	CPUs            int    `json:"cpus"`
	MemoryBytes     uint64 `json:"memory_bytes"`
}

// Measurement is a single benchmark result row.
type Measurement struct {
	ID             string            `json:"id"`
	Benchmark      string            `json:"benchmark"`
	Strategy       string            `json:"strategy"`
	Params         map[string]string `json:"params"`
	Repeat         int               `json:"repeat"`
	Machine        MachineInfo       `json:"machine"`
	StartedAt      time.Time         `json:"started_at"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	Network        NetworkStatistics `json:"network"`
	Error          string            `json:"error,omitempty"`
}
