package connmap

import (
	"NWBBenchmarks/internal/core/model"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource returns a scripted connection table, one entry per poll; the
// last entry repeats.
type fakeSource struct {
	mu     sync.Mutex
	tables [][]Connection
	err    error
	calls  int
}

func (s *fakeSource) Connections(ctx context.Context) ([]Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.tables) == 0 {
		return nil, nil
	}
	idx := s.calls - 1
	if idx >= len(s.tables) {
		idx = len(s.tables) - 1
	}
	return s.tables[idx], nil
}

func waitGeneration(t *testing.T, m *Mapper, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Generation() >= n }, 2*time.Second, time.Millisecond)
}

func TestMapper_BidirectionalLookup(t *testing.T) {
	src := &fakeSource{tables: [][]Connection{{
		{LocalIP: "10.0.0.2", LocalPort: 5000, RemoteIP: "1.1.1.1", RemotePort: 443, Pid: 1234},
	}}}
	m := NewMapper(src, 5*time.Millisecond)

	m.Start()
	<-m.Primed()
	m.Stop()

	pairs := m.ConnectionsForPID(1234)
	assert.ElementsMatch(t, []model.PortPair{{Local: 5000, Remote: 443}, {Local: 443, Remote: 5000}}, pairs)
}

func TestMapper_SkipsIncompleteConnections(t *testing.T) {
	m := NewMapper(&fakeSource{}, time.Millisecond)
	m.Observe([]Connection{
		{LocalIP: "0.0.0.0", LocalPort: 8080, Pid: 10},                                       // listening, no remote
		{LocalIP: "10.0.0.2", LocalPort: 5001, RemoteIP: "1.1.1.1", RemotePort: 443},          // no owner
		{LocalIP: "10.0.0.2", LocalPort: 5002, RemoteIP: "1.1.1.1", RemotePort: 443, Pid: 10}, // kept
	})

	assert.Equal(t, 2, m.Len())
	assert.ElementsMatch(t, []model.PortPair{{Local: 5002, Remote: 443}, {Local: 443, Remote: 5002}}, m.ConnectionsForPID(10))
}

func TestMapper_ClosedConnectionStaysAttributable(t *testing.T) {
	src := &fakeSource{tables: [][]Connection{
		{{LocalIP: "10.0.0.2", LocalPort: 5000, RemoteIP: "1.1.1.1", RemotePort: 443, Pid: 7}},
		{}, // connection closed
	}}
	m := NewMapper(src, time.Millisecond)

	m.Start()
	waitGeneration(t, m, 3)
	m.Stop()

	assert.Len(t, m.ConnectionsForPID(7), 2)
}

func TestMapper_OtherPIDsAreNotReturned(t *testing.T) {
	m := NewMapper(&fakeSource{}, time.Millisecond)
	m.Observe([]Connection{
		{LocalIP: "10.0.0.2", LocalPort: 5000, RemoteIP: "1.1.1.1", RemotePort: 443, Pid: 1},
		{LocalIP: "10.0.0.2", LocalPort: 6000, RemoteIP: "1.1.1.1", RemotePort: 443, Pid: 2},
	})

	for _, p := range m.ConnectionsForPID(1) {
		assert.NotEqual(t, uint16(6000), p.Local)
		assert.NotEqual(t, uint16(6000), p.Remote)
	}
	assert.Empty(t, m.ConnectionsForPID(3))
}

func TestMapper_SourceErrorKeepsPolling(t *testing.T) {
	src := &fakeSource{err: errors.New("permission denied")}
	m := NewMapper(src, time.Millisecond)

	m.Start()
	waitGeneration(t, m, 3)
	m.Stop()

	assert.Zero(t, m.Len())
}

func TestMapper_StopJoinsAndIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	m := NewMapper(src, time.Millisecond)

	m.Stop() // never started
	m.Start()
	m.Start() // second start is ignored
	waitGeneration(t, m, 1)
	m.Stop()
	m.Stop()

	gen := m.Generation()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, gen, m.Generation(), "no polls after Stop returns")
}

func TestFirstAddresses(t *testing.T) {
	ifaces := psnet.InterfaceStatList{
		{Name: "lo", Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}, {Addr: "::1/128"}}},
		{Name: "eth0", Addrs: psnet.InterfaceAddrList{{Addr: "192.168.1.5/24"}}},
		{Name: "docker0"},
		{Name: "wg0", Addrs: psnet.InterfaceAddrList{{Addr: "fd00::2"}}},
	}

	assert.Equal(t, []string{"127.0.0.1", "192.168.1.5", "fd00::2"}, firstAddresses(ifaces))
}

func TestMapper_StopTakesFinalSnapshot(t *testing.T) {
	src := &fakeSource{tables: [][]Connection{
		{},
		{{LocalIP: "10.0.0.2", LocalPort: 5000, RemoteIP: "1.1.1.1", RemotePort: 443, Pid: 7}},
	}}
	m := NewMapper(src, time.Hour)

	m.Start()
	<-m.Primed()
	assert.Empty(t, m.ConnectionsForPID(7))
	m.Stop()

	assert.ElementsMatch(t, []model.PortPair{{Local: 5000, Remote: 443}, {Local: 443, Remote: 5000}}, m.ConnectionsForPID(7))
	assert.Equal(t, uint64(2), m.Generation())
}

// gatedSource blocks every poll until released and records whether the poll
// context was cancelled while it waited.
type gatedSource struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

func (s *gatedSource) Connections(ctx context.Context) ([]Connection, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		s.mu.Lock()
		s.err = ctx.Err()
		s.mu.Unlock()
		return nil, ctx.Err()
	}
	return []Connection{{LocalIP: "10.0.0.2", LocalPort: 5000, RemoteIP: "1.1.1.1", RemotePort: 443, Pid: 7}}, nil
}

func (s *gatedSource) cancelled() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func TestMapper_StopLetsInFlightPollFinish(t *testing.T) {
	src := &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
	m := NewMapper(src, time.Hour)

	m.Start()
	<-src.entered

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, src.cancelled(), "Stop must not cancel a running poll")

	close(src.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.NoError(t, src.cancelled())
	assert.Len(t, m.ConnectionsForPID(7), 2)
}
