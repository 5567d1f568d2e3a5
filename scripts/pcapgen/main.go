package main

import (
	"NWBBenchmarks/internal/pkg/pcaptest"
	"flag"
	"math/rand"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Generates a capture resembling one remote read: request packets from a
// local port to 443, larger response packets back, and unrelated noise.
func main() {
	outputFile := flag.String("o", "test.pcap", "Output capture file path (.pcapng writes pcapng)")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	localIP := flag.String("local", "10.0.0.2", "Local address of the benchmarked connection")
	remoteIP := flag.String("remote", "93.184.216.34", "Remote address of the benchmarked connection")
	localPort := flag.Uint("port", 5000, "Local port of the benchmarked connection")
	noise := flag.Float64("noise", 0.2, "Share of packets that belong to other connections")
	flag.Parse()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now()

	frames := make([]pcaptest.Frame, 0, *packetCount)
	for i := 0; i < *packetCount; i++ {
		if (i+1)%100000 == 0 {
			log.Infof("Generated %d packets...", i+1)
		}
		ts := start.Add(time.Duration(i) * time.Millisecond)

		switch {
		case rng.Float64() < *noise:
			frames = append(frames, pcaptest.Frame{
				SrcIP:   *localIP,
				DstIP:   "192.0.2.10",
				SrcPort: uint16(rng.Intn(65535-1024) + 1024),
				DstPort: 53,
				UDP:     true,
				Payload: rng.Intn(100) + 20,
				Time:    ts,
			})
		case i%4 == 0:
			frames = append(frames, pcaptest.Frame{
				SrcIP: *localIP, DstIP: *remoteIP,
				SrcPort: uint16(*localPort), DstPort: 443,
				Payload: rng.Intn(200) + 50,
				Time:    ts,
			})
		default:
			frames = append(frames, pcaptest.Frame{
				SrcIP: *remoteIP, DstIP: *localIP,
				SrcPort: 443, DstPort: uint16(*localPort),
				Payload: 1400,
				Time:    ts,
			})
		}
	}

	write := pcaptest.WriteFile
	if strings.HasSuffix(*outputFile, ".pcapng") {
		write = pcaptest.WriteNgFile
	}
	if err := write(*outputFile, frames); err != nil {
		log.Fatalf("Failed to write capture file: %v", err)
	}
	log.Infof("Successfully generated %d packets into %s.", len(frames), *outputFile)
}
