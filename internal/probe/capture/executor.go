//go:build unix

package capture

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// RealExecutor implements ProcessExecutor using os/exec.
type RealExecutor struct{}

// NewRealExecutor creates a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// CreateProcess creates the capture process with stdout and stderr discarded.
// The process is started in its own process group so that helper children
// (dumpcap under tshark) are signalled together with it.
func (e *RealExecutor) CreateProcess(name string, args ...string) (Process, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, err
	}

	// #nosec G204 -- tool path and arguments come from the local config
	cmd := exec.Command(path, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return &realProcess{cmd: cmd}, nil
}

// realProcess wraps exec.Cmd to implement Process.
type realProcess struct {
	cmd *exec.Cmd
}

func (p *realProcess) Start() error {
	return p.cmd.Start()
}

func (p *realProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *realProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *realProcess) Signal(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok || p.cmd.Process == nil {
		return errors.New("unsupported signal or process not started")
	}
	return signalGroup(p.cmd.Process.Pid, s)
}

func (p *realProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return signalGroup(p.cmd.Process.Pid, syscall.SIGKILL)
}

// signalGroup signals the whole process group; PGID equals the leader's PID
// because the process was started with Setpgid.
func signalGroup(pgid int, sig syscall.Signal) error {
	err := syscall.Kill(-pgid, sig)
	if err == syscall.ESRCH {
		// Process/group already terminated - nothing to do
		return nil
	}
	return err
}
