package capture

import "os"

// Process represents a running capture tool.
type Process interface {
	// Start starts the process but does not wait for it to complete.
	Start() error
	// Wait waits for the process to exit. It is called exactly once.
	Wait() error
	// Signal delivers sig to the process group.
	Signal(sig os.Signal) error
	// Kill force-kills the process group.
	Kill() error
	// Pid returns the process id, or 0 before Start.
	Pid() int
}

// ProcessExecutor creates processes for execution.
type ProcessExecutor interface {
	CreateProcess(name string, args ...string) (Process, error)
}
