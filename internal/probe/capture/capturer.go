// Package capture runs an external packet-capture tool for the length of a
// measurement session and exposes the captured frames as parsed packets.
package capture

import (
	"NWBBenchmarks/internal/core/model"
	"NWBBenchmarks/pkg/pcap"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrStillCapturing is returned when packets are requested before Stop.
	ErrStillCapturing = errors.New("capture still running")
	// ErrNoCapture is returned when the capturer was never started.
	ErrNoCapture = errors.New("no capture file")
)

// Options configures a Capturer.
type Options struct {
	ToolPath         string
	Interface        string
	OutputDir        string // os.TempDir() when empty
	StartupDelay     time.Duration
	FlushDelay       time.Duration
	TerminateTimeout time.Duration
	KillTimeout      time.Duration
	MaxDuration      time.Duration // autostop, 0 disables
	MaxFileSizeKB    int           // autostop, 0 disables
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ToolPath:         "tshark",
		StartupDelay:     200 * time.Millisecond,
		FlushDelay:       200 * time.Millisecond,
		TerminateTimeout: 2 * time.Second,
		KillTimeout:      2 * time.Second,
	}
}

// BuildArgs returns the command line for the configured tool writing to path.
// tcpdump gets its own flags, every other tool is assumed to speak the
// tshark/dumpcap syntax.
func BuildArgs(opts Options, path string) []string {
	args := []string{"-w", path}
	if opts.Interface != "" {
		args = append(args, "-i", opts.Interface)
	}

	if isTcpdump(opts.ToolPath) {
		// -U flushes every packet so the file is complete once the tool exits.
		args = append(args, "-U")
		if secs := int(opts.MaxDuration.Seconds()); secs > 0 {
			args = append(args, "-G", strconv.Itoa(secs), "-W", "1")
		}
		return args
	}

	if secs := int(opts.MaxDuration.Seconds()); secs > 0 {
		args = append(args, "-a", "duration:"+strconv.Itoa(secs))
	}
	if opts.MaxFileSizeKB > 0 {
		args = append(args, "-a", "filesize:"+strconv.Itoa(opts.MaxFileSizeKB))
	}
	return args
}

func isTcpdump(toolPath string) bool {
	return strings.HasPrefix(filepath.Base(toolPath), "tcpdump")
}

// ParseResult is the outcome of reading the capture file. Err is set when the
// file could not be read completely; Packets then holds the readable prefix.
type ParseResult struct {
	Packets []*model.PacketInfo
	Err     error
}

// SessionInfo describes one capture window.
type SessionInfo struct {
	Path      string
	Pid       int
	StartedAt time.Time
	StoppedAt time.Time
}

// Capturer manages one capture subprocess and its output file.
//
// Packets are only read after Stop has terminated the subprocess and waited
// FlushDelay for buffered output to reach the file.
type Capturer struct {
	opts     Options
	executor ProcessExecutor

	mu      sync.Mutex
	proc    Process
	exited  chan struct{}
	session SessionInfo
	parsed  *ParseResult
}

// NewCapturer creates a capturer. A nil executor runs real processes.
func NewCapturer(opts Options, executor ProcessExecutor) *Capturer {
	if executor == nil {
		executor = NewRealExecutor()
	}
	if opts.ToolPath == "" {
		opts.ToolPath = DefaultOptions().ToolPath
	}
	return &Capturer{opts: opts, executor: executor}
}

// Start creates the capture file and spawns the capture tool.
//
// Only failure to create the capture file is returned; a tool that cannot be
// spawned is logged and leaves an empty capture behind.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proc != nil {
		return nil
	}

	f, err := os.CreateTemp(c.opts.OutputDir, "nwb-capture-*.pcapng")
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	f.Close()

	c.session = SessionInfo{Path: f.Name(), StartedAt: time.Now()}
	c.parsed = nil

	args := BuildArgs(c.opts, c.session.Path)
	proc, err := c.executor.CreateProcess(c.opts.ToolPath, args...)
	if err == nil {
		err = proc.Start()
	}
	if err != nil {
		log.WithFields(log.Fields{"tool": c.opts.ToolPath, "file": c.session.Path}).
			Warnf("capture: failed to start capture tool: %v", err)
		return nil
	}

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		if err := proc.Wait(); err != nil {
			log.Debugf("capture: %s exited: %v", c.opts.ToolPath, err)
		}
	}()

	c.proc = proc
	c.exited = exited
	c.session.Pid = proc.Pid()
	log.Debugf("capture: started %s (pid %d) writing to %s", c.opts.ToolPath, c.session.Pid, c.session.Path)

	// Let the tool open the interface before traffic of interest starts.
	select {
	case <-ctx.Done():
	case <-exited:
		log.WithField("tool", c.opts.ToolPath).Warn("capture: capture tool exited during startup")
	case <-time.After(c.opts.StartupDelay):
	}
	return nil
}

// Stop terminates the capture tool: SIGTERM, bounded wait, kill, bounded wait.
// Failures are logged, never returned. Stop is a no-op when nothing runs.
func (c *Capturer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	proc, exited := c.proc, c.exited
	if proc == nil {
		return
	}
	c.proc, c.exited = nil, nil

	if err := terminate(proc, exited, c.opts.TerminateTimeout, c.opts.KillTimeout); err != nil {
		log.WithFields(log.Fields{"tool": c.opts.ToolPath, "pid": proc.Pid()}).
			Warnf("capture: %v", err)
	}
	c.session.StoppedAt = time.Now()

	if c.opts.FlushDelay > 0 {
		time.Sleep(c.opts.FlushDelay)
	}
}

func terminate(proc Process, exited <-chan struct{}, termTimeout, killTimeout time.Duration) error {
	select {
	case <-exited:
		return nil
	default:
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		log.Debugf("capture: SIGTERM to %d failed: %v", proc.Pid(), err)
	}
	select {
	case <-exited:
		return nil
	case <-time.After(termTimeout):
	}

	if err := proc.Kill(); err != nil {
		return fmt.Errorf("failed to kill capture process %d: %w", proc.Pid(), err)
	}
	select {
	case <-exited:
		return nil
	case <-time.After(killTimeout):
		return fmt.Errorf("capture process %d did not exit after kill", proc.Pid())
	}
}

// Running reports whether a capture process handle is held.
func (c *Capturer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil
}

// Session returns the details of the current or last capture window.
func (c *Capturer) Session() SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Parse reads the capture file. A complete parse is cached.
func (c *Capturer) Parse() ParseResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.parsed != nil {
		return *c.parsed
	}
	if c.proc != nil {
		return ParseResult{Err: ErrStillCapturing}
	}
	if c.session.Path == "" {
		return ParseResult{Err: ErrNoCapture}
	}

	if fi, err := os.Stat(c.session.Path); err == nil && fi.Size() == 0 {
		// The tool never wrote a header, nothing was captured.
		res := ParseResult{}
		c.parsed = &res
		return res
	}

	packets, err := pcap.ReadFile(c.session.Path)
	res := ParseResult{Packets: packets, Err: err}
	if err != nil {
		log.WithField("file", c.session.Path).
			Warnf("capture: kept %d packets from unreadable capture: %v", len(packets), err)
		return res
	}
	c.parsed = &res
	return res
}

// Packets returns the parsed packets, or whatever could be read on failure.
func (c *Capturer) Packets() []*model.PacketInfo {
	return c.Parse().Packets
}

// PacketsForConnections returns the packets whose (source port, destination
// port) appears in pairs.
func (c *Capturer) PacketsForConnections(pairs []model.PortPair) []*model.PacketInfo {
	return FilterByPorts(c.Packets(), pairs)
}

// FilterByPorts keeps packets whose (source port, destination port) is in pairs.
func FilterByPorts(packets []*model.PacketInfo, pairs []model.PortPair) []*model.PacketInfo {
	if len(packets) == 0 || len(pairs) == 0 {
		return nil
	}
	want := make(map[model.PortPair]struct{}, len(pairs))
	for _, p := range pairs {
		want[p] = struct{}{}
	}

	var matched []*model.PacketInfo
	for _, pkt := range packets {
		if pkt == nil {
			continue
		}
		if _, ok := want[pkt.Ports()]; ok {
			matched = append(matched, pkt)
		}
	}
	return matched
}

// Close stops the capture and deletes the capture file. A file that cannot
// be deleted is logged and left behind.
func (c *Capturer) Close() error {
	c.Stop()

	c.mu.Lock()
	path := c.session.Path
	c.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithField("file", path).Warnf("capture: failed to remove capture file: %v", err)
	}
	return nil
}
