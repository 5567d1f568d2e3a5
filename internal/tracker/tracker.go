// Package tracker bounds one measurement session: it runs the connection
// mapper and the packet capturer around an operation and attributes the
// captured traffic to a process afterwards.
package tracker

import (
	"NWBBenchmarks/internal/config"
	"NWBBenchmarks/internal/core/model"
	"NWBBenchmarks/internal/engine/statistic"
	"NWBBenchmarks/internal/probe/capture"
	"NWBBenchmarks/internal/probe/connmap"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	ps "github.com/mitchellh/go-ps"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotStarted is returned when a capture is stopped before it was started.
	ErrNotStarted = errors.New("network capture not started")
	// ErrAlreadyCapturing is returned when a capture is started twice.
	ErrAlreadyCapturing = errors.New("network capture already running")
)

// State is the lifecycle position of a Tracker.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a tracking session.
type Options struct {
	Capture      capture.Options
	PollInterval time.Duration
	PrimeDelay   time.Duration
	// LocalAddresses classifies upload vs download. Nil enumerates the
	// machine's interfaces when statistics are computed.
	LocalAddresses []string
}

// DefaultOptions returns the built-in session settings.
func DefaultOptions() Options {
	return Options{
		Capture:      capture.DefaultOptions(),
		PollInterval: connmap.DefaultPollInterval,
		PrimeDelay:   200 * time.Millisecond,
	}
}

// OptionsFromConfig converts validated configuration into session options.
func OptionsFromConfig(cfg *config.Config) Options {
	c := cfg.Capture
	return Options{
		Capture: capture.Options{
			ToolPath:         c.ToolPath,
			Interface:        c.Interface,
			OutputDir:        c.OutputDir,
			StartupDelay:     config.MustDuration(c.StartupDelay),
			FlushDelay:       config.MustDuration(c.FlushDelay),
			TerminateTimeout: config.MustDuration(c.TerminateTimeout),
			KillTimeout:      config.MustDuration(c.KillTimeout),
			MaxDuration:      config.MustDuration(c.MaxDuration),
			MaxFileSizeKB:    c.MaxFileSizeKB,
		},
		PollInterval: config.MustDuration(cfg.Tracker.PollInterval),
		PrimeDelay:   config.MustDuration(cfg.Tracker.PrimeDelay),
	}
}

// Option customizes the collaborators of a Tracker.
type Option func(*Tracker)

// WithConnectionSource replaces the OS connection table.
func WithConnectionSource(src connmap.ConnectionSource) Option {
	return func(t *Tracker) { t.source = src }
}

// WithExecutor replaces the process executor of the capture tool.
func WithExecutor(exec capture.ProcessExecutor) Option {
	return func(t *Tracker) { t.executor = exec }
}

// WithClock replaces time.Now for elapsed time measurement.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker runs one capture session at a time. Every session uses a fresh
// Mapper and Capturer so no port pairs carry over between sessions.
type Tracker struct {
	opts     Options
	source   connmap.ConnectionSource
	executor capture.ProcessExecutor
	now      func() time.Time

	mu          sync.Mutex
	state       State
	mapper      *connmap.Mapper
	capturer    *capture.Capturer
	startedAt   time.Time
	stats       model.NetworkStatistics
	pid         int
	processName string
}

// New creates an idle tracker.
func New(opts Options, options ...Option) *Tracker {
	t := &Tracker{opts: opts, now: time.Now}
	for _, o := range options {
		o(t)
	}
	return t
}

// StartNetworkCapture starts the connection mapper, waits for its first poll
// (at most PrimeDelay), then starts the capture tool.
func (t *Tracker) StartNetworkCapture(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateCapturing {
		return ErrAlreadyCapturing
	}
	t.release()

	mapper := connmap.NewMapper(t.source, t.opts.PollInterval)
	mapper.Start()
	if t.opts.PrimeDelay > 0 {
		select {
		case <-mapper.Primed():
		case <-time.After(t.opts.PrimeDelay):
			log.Debug("tracker: connection mapper not primed yet, starting capture anyway")
		case <-ctx.Done():
		}
	}

	capturer := capture.NewCapturer(t.opts.Capture, t.executor)
	if err := capturer.Start(ctx); err != nil {
		mapper.Stop()
		return fmt.Errorf("failed to start network capture: %w", err)
	}

	t.mapper = mapper
	t.capturer = capturer
	t.stats = model.NetworkStatistics{}
	t.pid, t.processName = 0, ""
	t.startedAt = t.now()
	t.state = StateCapturing
	return nil
}

// StopNetworkCapture stops both collectors and attributes the captured
// packets to pid, or to the calling process when pid is 0.
//
// Only ErrNotStarted is returned. Instrumentation faults are logged and
// produce zero-valued counts.
func (t *Tracker) StopNetworkCapture(pid int) (model.NetworkStatistics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateCapturing {
		return model.NetworkStatistics{}, ErrNotStarted
	}

	// The mapper keeps polling while the capture tool flushes and exits.
	t.capturer.Stop()
	t.mapper.Stop()
	elapsed := t.now().Sub(t.startedAt)

	if pid == 0 {
		pid = os.Getpid()
	}
	pairs := t.mapper.ConnectionsForPID(int32(pid))

	res := t.capturer.Parse()
	if res.Err != nil {
		log.WithFields(log.Fields{"pid": pid, "packets": len(res.Packets)}).
			Warnf("tracker: capture file not fully readable: %v", res.Err)
	}
	packets := capture.FilterByPorts(res.Packets, pairs)

	t.stats = statistic.GetStatistics(packets, t.opts.LocalAddresses).WithTotalTime(elapsed)
	t.pid = pid
	t.processName = processName(pid)
	t.state = StateStopped

	log.WithFields(log.Fields{
		"pid":        pid,
		"process":    t.processName,
		"port_pairs": len(pairs),
		"captured":   len(res.Packets),
		"attributed": len(packets),
		"elapsed":    elapsed,
	}).Debug("tracker: network capture stopped")
	return t.stats, nil
}

func processName(pid int) string {
	p, err := ps.FindProcess(pid)
	if err != nil || p == nil {
		return ""
	}
	return p.Executable()
}

// Close stops a running session and deletes its capture file.
func (t *Tracker) Close() error {
	if t.State() == StateCapturing {
		if _, err := t.StopNetworkCapture(0); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release()
	return nil
}

// release deletes the previous session's capture file. Caller holds mu.
func (t *Tracker) release() {
	if t.capturer != nil {
		t.capturer.Close()
		t.capturer = nil
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Statistics returns the record of the last completed session.
func (t *Tracker) Statistics() model.NetworkStatistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// ProcessName returns the executable name of the attributed process, if known.
func (t *Tracker) ProcessName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processName
}

// Track runs fn inside a capture session attributed to the calling process.
// The session is stopped and its capture file removed on every exit path,
// including a panic in fn, which is re-raised afterwards. The returned
// tracker holds the statistics even when fn fails.
func Track(ctx context.Context, opts Options, fn func(ctx context.Context) error, options ...Option) (t *Tracker, err error) {
	t = New(opts, options...)
	if err := t.StartNetworkCapture(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if _, stopErr := t.StopNetworkCapture(0); stopErr != nil {
			log.Warnf("tracker: %v", stopErr)
		}
		t.Close()
	}()

	return t, fn(ctx)
}
