//go:build !unix

package capture

import (
	"os"
	"os/exec"
)

// RealExecutor implements ProcessExecutor using os/exec.
type RealExecutor struct{}

// NewRealExecutor creates a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// CreateProcess creates the capture process with stdout and stderr discarded.
func (e *RealExecutor) CreateProcess(name string, args ...string) (Process, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, err
	}
	// #nosec G204 -- tool path and arguments come from the local config
	return &realProcess{cmd: exec.Command(path, args...)}, nil
}

type realProcess struct {
	cmd *exec.Cmd
}

func (p *realProcess) Start() error { return p.cmd.Start() }

func (p *realProcess) Wait() error { return p.cmd.Wait() }

func (p *realProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Signal falls back to Kill where the platform has no SIGTERM delivery.
func (p *realProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(sig); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

func (p *realProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
