package tracker

import (
	"NWBBenchmarks/internal/config"
	"NWBBenchmarks/internal/pkg/pcaptest"
	"NWBBenchmarks/internal/probe/capture"
	"NWBBenchmarks/internal/probe/connmap"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource serves a connection table the test can swap between sessions.
type stubSource struct {
	mu    sync.Mutex
	conns []connmap.Connection
}

func (s *stubSource) set(conns ...connmap.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns = conns
}

func (s *stubSource) Connections(ctx context.Context) ([]connmap.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]connmap.Connection(nil), s.conns...), nil
}

// toolProcess stands in for the capture tool: it writes frames to its -w
// path when terminated.
type toolProcess struct {
	path   string
	frames []pcaptest.Frame
	done   chan struct{}
	once   sync.Once
	t      *testing.T
}

func (p *toolProcess) Start() error { return nil }
func (p *toolProcess) Wait() error  { <-p.done; return nil }
func (p *toolProcess) Pid() int     { return 31337 }
func (p *toolProcess) Kill() error  { p.exit(); return nil }

func (p *toolProcess) Signal(os.Signal) error {
	p.exit()
	return nil
}

func (p *toolProcess) exit() {
	p.once.Do(func() {
		require.NoError(p.t, pcaptest.WriteFile(p.path, p.frames))
		close(p.done)
	})
}

// toolExecutor hands every session a tool that captures the current frames.
type toolExecutor struct {
	t      *testing.T
	mu     sync.Mutex
	frames []pcaptest.Frame
	spawns int
}

func (e *toolExecutor) set(frames ...pcaptest.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = frames
}

func (e *toolExecutor) CreateProcess(name string, args ...string) (capture.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spawns++
	return &toolProcess{path: args[1], frames: e.frames, done: make(chan struct{}), t: e.t}, nil
}

func testOptions(t *testing.T) Options {
	return Options{
		Capture: capture.Options{
			ToolPath:         "tshark",
			OutputDir:        t.TempDir(),
			StartupDelay:     time.Millisecond,
			FlushDelay:       time.Millisecond,
			TerminateTimeout: 50 * time.Millisecond,
			KillTimeout:      50 * time.Millisecond,
		},
		PollInterval:   time.Millisecond,
		PrimeDelay:     time.Second,
		LocalAddresses: []string{"10.0.0.2"},
	}
}

func conn(local, remote uint32, pid int) connmap.Connection {
	return connmap.Connection{LocalIP: "10.0.0.2", LocalPort: local, RemoteIP: "1.1.1.1", RemotePort: remote, Pid: int32(pid)}
}

func up(local, remote uint16, payload int) pcaptest.Frame {
	return pcaptest.Frame{SrcIP: "10.0.0.2", DstIP: "1.1.1.1", SrcPort: local, DstPort: remote, Payload: payload}
}

func down(local, remote uint16, payload int) pcaptest.Frame {
	return pcaptest.Frame{SrcIP: "1.1.1.1", DstIP: "10.0.0.2", SrcPort: remote, DstPort: local, Payload: payload}
}

func TestTracker_AttributesTrafficToPID(t *testing.T) {
	src := &stubSource{}
	src.set(conn(5000, 443, 1234), conn(6000, 80, 999))
	exec := &toolExecutor{t: t}
	exec.set(up(5000, 443, 100), down(5000, 443, 1000), up(6000, 80, 10), up(9999, 9999, 10))

	tr := New(testOptions(t), WithConnectionSource(src), WithExecutor(exec))
	assert.Equal(t, StateIdle, tr.State())

	require.NoError(t, tr.StartNetworkCapture(context.Background()))
	assert.Equal(t, StateCapturing, tr.State())

	stats, err := tr.StopNetworkCapture(1234)
	require.NoError(t, err)
	defer tr.Close()

	assert.Equal(t, StateStopped, tr.State())
	assert.Equal(t, int64(2), stats.NumberOfPackets)
	assert.Equal(t, int64(1), stats.NumberOfPacketsUploaded)
	assert.Equal(t, int64(1), stats.NumberOfPacketsDownloaded)
	assert.Equal(t, int64(pcaptest.FrameLen(up(5000, 443, 100))), stats.BytesUploaded)
	assert.Equal(t, int64(pcaptest.FrameLen(down(5000, 443, 1000))), stats.BytesDownloaded)
	assert.Equal(t, stats, tr.Statistics())
}

func TestTracker_ConnectionOpenedAfterLastPoll(t *testing.T) {
	src := &stubSource{}
	exec := &toolExecutor{t: t}
	exec.set(up(5000, 443, 100), down(5000, 443, 1000))

	opts := testOptions(t)
	opts.PollInterval = time.Hour
	tr := New(opts, WithConnectionSource(src), WithExecutor(exec))

	require.NoError(t, tr.StartNetworkCapture(context.Background()))
	src.set(conn(5000, 443, 1234))

	stats, err := tr.StopNetworkCapture(1234)
	require.NoError(t, err)
	defer tr.Close()

	assert.Equal(t, int64(2), stats.NumberOfPackets)
	assert.Equal(t, int64(1), stats.NumberOfPacketsUploaded)
	assert.Equal(t, int64(1), stats.NumberOfPacketsDownloaded)
}

func TestTracker_ElapsedTimeFromClock(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var mu sync.Mutex
	calls := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(500 * time.Millisecond)
	}

	tr := New(testOptions(t), WithConnectionSource(&stubSource{}), WithExecutor(&toolExecutor{t: t}), WithClock(clock))
	require.NoError(t, tr.StartNetworkCapture(context.Background()))
	stats, err := tr.StopNetworkCapture(0)
	require.NoError(t, err)
	defer tr.Close()

	assert.InDelta(t, 0.5, stats.TotalTimeSeconds, 1e-6)
	assert.Zero(t, stats.NumberOfPackets)
}

func TestTracker_StopBeforeStart(t *testing.T) {
	tr := New(testOptions(t))

	stats, err := tr.StopNetworkCapture(0)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Len(t, stats.AsMap(), 7)
	assert.Equal(t, StateIdle, tr.State())
}

func TestTracker_DoubleStart(t *testing.T) {
	tr := New(testOptions(t), WithConnectionSource(&stubSource{}), WithExecutor(&toolExecutor{t: t}))
	require.NoError(t, tr.StartNetworkCapture(context.Background()))
	defer tr.Close()

	assert.ErrorIs(t, tr.StartNetworkCapture(context.Background()), ErrAlreadyCapturing)
}

func TestTracker_SessionsDoNotShareMappings(t *testing.T) {
	src := &stubSource{}
	exec := &toolExecutor{t: t}
	tr := New(testOptions(t), WithConnectionSource(src), WithExecutor(exec))
	defer tr.Close()

	src.set(conn(5000, 443, 42))
	exec.set(up(5000, 443, 100))
	require.NoError(t, tr.StartNetworkCapture(context.Background()))
	first, err := tr.StopNetworkCapture(42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.NumberOfPackets)

	// The first connection is gone, but its traffic shows up again on the wire.
	src.set(conn(6000, 443, 42))
	exec.set(up(5000, 443, 100), up(6000, 443, 200))
	require.NoError(t, tr.StartNetworkCapture(context.Background()))
	second, err := tr.StopNetworkCapture(42)
	require.NoError(t, err)

	assert.Equal(t, int64(1), second.NumberOfPackets)
	assert.Equal(t, int64(pcaptest.FrameLen(up(6000, 443, 200))), second.BytesTotal)
	assert.Equal(t, 2, exec.spawns)
}

func TestTrack_StopsOnEveryExitPath(t *testing.T) {
	pid := os.Getpid()

	t.Run("success", func(t *testing.T) {
		src := &stubSource{}
		src.set(conn(5000, 443, pid))
		exec := &toolExecutor{t: t}
		exec.set(up(5000, 443, 100), down(5000, 443, 300))

		tr, err := Track(context.Background(), testOptions(t), func(ctx context.Context) error {
			return nil
		}, WithConnectionSource(src), WithExecutor(exec))
		require.NoError(t, err)

		assert.Equal(t, StateStopped, tr.State())
		assert.Equal(t, int64(2), tr.Statistics().NumberOfPackets)
	})

	t.Run("error", func(t *testing.T) {
		opErr := errors.New("range request failed")
		tr, err := Track(context.Background(), testOptions(t), func(ctx context.Context) error {
			return opErr
		}, WithConnectionSource(&stubSource{}), WithExecutor(&toolExecutor{t: t}))

		assert.ErrorIs(t, err, opErr)
		require.NotNil(t, tr)
		assert.Equal(t, StateStopped, tr.State())
	})

	t.Run("panic", func(t *testing.T) {
		opts := testOptions(t)
		assert.PanicsWithValue(t, "boom", func() {
			Track(context.Background(), opts, func(ctx context.Context) error {
				panic("boom")
			}, WithConnectionSource(&stubSource{}), WithExecutor(&toolExecutor{t: t}))
		})

		entries, err := os.ReadDir(opts.Capture.OutputDir)
		require.NoError(t, err)
		assert.Empty(t, entries, "capture file removed after panic")
	})
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.MaxDuration = "10m"
	cfg.Capture.MaxFileSizeKB = 1024

	opts := OptionsFromConfig(cfg)

	assert.Equal(t, "tshark", opts.Capture.ToolPath)
	assert.Equal(t, 200*time.Millisecond, opts.Capture.StartupDelay)
	assert.Equal(t, 2*time.Second, opts.Capture.TerminateTimeout)
	assert.Equal(t, 10*time.Minute, opts.Capture.MaxDuration)
	assert.Equal(t, 1024, opts.Capture.MaxFileSizeKB)
	assert.Equal(t, 200*time.Millisecond, opts.PollInterval)
	assert.Nil(t, opts.LocalAddresses)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "capturing", StateCapturing.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}
