// Package connmap keeps a cumulative map from connection port pairs to the
// process that owns them, built by polling the OS connection table.
package connmap

import (
	"NWBBenchmarks/internal/core/model"
	"context"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is the cadence of connection table snapshots.
const DefaultPollInterval = 200 * time.Millisecond

// Connection is one row of the OS connection table.
type Connection struct {
	LocalIP    string
	LocalPort  uint32
	RemoteIP   string
	RemotePort uint32
	Pid        int32
}

// ConnectionSource enumerates the current OS connections.
type ConnectionSource interface {
	Connections(ctx context.Context) ([]Connection, error)
}

// SystemSource reads the connection table through gopsutil.
type SystemSource struct {
	Kind string // gopsutil connection kind, "inet" when empty
}

// Connections implements ConnectionSource.
func (s SystemSource) Connections(ctx context.Context) ([]Connection, error) {
	kind := s.Kind
	if kind == "" {
		kind = "inet"
	}
	stats, err := psnet.ConnectionsWithContext(ctx, kind)
	if err != nil {
		return nil, err
	}
	conns := make([]Connection, 0, len(stats))
	for _, c := range stats {
		conns = append(conns, Connection{
			LocalIP:    c.Laddr.IP,
			LocalPort:  c.Laddr.Port,
			RemoteIP:   c.Raddr.IP,
			RemotePort: c.Raddr.Port,
			Pid:        c.Pid,
		})
	}
	return conns, nil
}

// Mapper polls a ConnectionSource in the background and accumulates
// (local port, remote port) -> pid entries in both orientations.
//
// Entries are never removed while the Mapper lives, so a connection that
// closes mid-session stays attributable. Stop joins the polling goroutine
// and takes one last snapshot; reads after Stop observe the final state of
// the map.
type Mapper struct {
	source   ConnectionSource
	interval time.Duration

	mu    sync.RWMutex
	pairs map[model.PortPair]int32

	generation atomic.Uint64
	primed     chan struct{}
	primeOnce  sync.Once

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMapper creates a mapper. A nil source uses the system connection table
// and a non-positive interval uses DefaultPollInterval.
func NewMapper(source ConnectionSource, interval time.Duration) *Mapper {
	if source == nil {
		source = SystemSource{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Mapper{
		source:   source,
		interval: interval,
		pairs:    make(map[model.PortPair]int32, 256),
		primed:   make(chan struct{}),
	}
}

// Start launches the polling goroutine. A second Start while running is a no-op.
func (m *Mapper) Start() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop ends polling, waits for the goroutine to exit and then polls once
// more, so connections opened since the last tick are still recorded. An
// in-flight poll is allowed to finish. Stop on a mapper that never started
// is a no-op.
func (m *Mapper) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.cancel()
	<-m.done
	m.poll(context.Background())
}

// Primed is closed once the first poll has completed.
func (m *Mapper) Primed() <-chan struct{} {
	return m.primed
}

// Generation returns the number of completed polls.
func (m *Mapper) Generation() uint64 {
	return m.generation.Load()
}

func (m *Mapper) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Stop only interrupts the wait between polls, never a poll itself.
	pollCtx := context.WithoutCancel(ctx)
	m.poll(pollCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(pollCtx)
		}
	}
}

func (m *Mapper) poll(ctx context.Context) {
	defer func() {
		m.generation.Add(1)
		m.primeOnce.Do(func() { close(m.primed) })
	}()

	conns, err := m.source.Connections(ctx)
	if err != nil {
		// Usually missing privileges; the map simply stays incomplete.
		log.Debugf("connmap: failed to read connection table: %v", err)
		return
	}
	m.Observe(conns)
}

// Observe records both port-pair orientations of every connection that has
// a local and a remote endpoint and a known owner.
func (m *Mapper) Observe(conns []Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range conns {
		if c.LocalIP == "" || c.RemoteIP == "" || c.Pid <= 0 {
			continue
		}
		pair := model.PortPair{Local: uint16(c.LocalPort), Remote: uint16(c.RemotePort)}
		m.pairs[pair] = c.Pid
		m.pairs[pair.Reverse()] = c.Pid
	}
}

// ConnectionsForPID returns every port pair currently mapped to pid, sorted.
func (m *Mapper) ConnectionsForPID(pid int32) []model.PortPair {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pairs []model.PortPair
	for pair, owner := range m.pairs {
		if owner == pid {
			pairs = append(pairs, pair)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Local != pairs[j].Local {
			return pairs[i].Local < pairs[j].Local
		}
		return pairs[i].Remote < pairs[j].Remote
	})
	return pairs
}

// Len returns the number of stored port-pair keys.
func (m *Mapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pairs)
}

// LocalAddresses returns the first address of every network interface of this
// machine, skipping interfaces without one.
func LocalAddresses() []string {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		log.Warnf("connmap: failed to enumerate interfaces: %v", err)
		return nil
	}
	return firstAddresses(ifaces)
}

func firstAddresses(ifaces psnet.InterfaceStatList) []string {
	var addrs []string
	for _, iface := range ifaces {
		if len(iface.Addrs) == 0 {
			continue
		}
		raw := iface.Addrs[0].Addr
		if ip, _, err := net.ParseCIDR(raw); err == nil {
			addrs = append(addrs, ip.String())
			continue
		}
		if ip := net.ParseIP(raw); ip != nil {
			addrs = append(addrs, ip.String())
		}
	}
	return addrs
}
