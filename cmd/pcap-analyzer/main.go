package main

import (
	"NWBBenchmarks/internal/core/model"
	"NWBBenchmarks/internal/engine/statistic"
	"NWBBenchmarks/internal/pkg/logging"
	"NWBBenchmarks/internal/probe/capture"
	"NWBBenchmarks/pkg/pcap"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

func main() {
	ports := flag.String("ports", "", "Comma separated local:remote port pairs to attribute, e.g. 5000:443 (empty counts every packet)")
	local := flag.String("local", "", "Comma separated local addresses (empty enumerates this machine's interfaces)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: pcap-analyzer [-ports L:R,...] [-local ip,...] <path_to_capture_file>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	logging.SetupFromEnv()

	// 1. Read the capture file, keeping whatever is readable
	packets, err := pcap.ReadFile(flag.Arg(0))
	if err != nil {
		if len(packets) == 0 {
			log.Fatalf("Failed to read capture file: %v", err)
		}
		log.Warnf("Capture file is damaged, using the first %d packets: %v", len(packets), err)
	}

	// 2. Attribute packets to the given connections
	if *ports != "" {
		pairs, err := parsePortPairs(*ports)
		if err != nil {
			log.Fatalf("Invalid -ports: %v", err)
		}
		packets = capture.FilterByPorts(packets, pairs)
	}

	var addrs []string
	if *local != "" {
		addrs = strings.Split(*local, ",")
	}

	// 3. Print the statistics
	stats := statistic.GetStatistics(packets, addrs)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		log.Fatalf("Failed to encode statistics: %v", err)
	}
}

// parsePortPairs parses "L:R,..." into both orientations of every pair.
func parsePortPairs(s string) ([]model.PortPair, error) {
	var pairs []model.PortPair
	for _, item := range strings.Split(s, ",") {
		l, r, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok {
			return nil, fmt.Errorf("'%s' is not local:remote", item)
		}
		lp, err := strconv.ParseUint(l, 10, 16)
		if err != nil {
			return nil, err
		}
		rp, err := strconv.ParseUint(r, 10, 16)
		if err != nil {
			return nil, err
		}
		p := model.PortPair{Local: uint16(lp), Remote: uint16(rp)}
		pairs = append(pairs, p, p.Reverse())
	}
	return pairs, nil
}
