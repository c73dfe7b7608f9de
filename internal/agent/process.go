package agent

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// StartOptions contains options for starting an agent process.
type StartOptions struct {
	// Command is the executable to run.
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// Dir is the working directory for the process.
	Dir string

	// Env is the process environment. If nil, the current environment is used.
	Env []string
}

// Process is a running child with piped stdio.
type Process struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	pid int
}

// Start launches a child process with its stdin, stdout and stderr piped.
func Start(opts StartOptions) (*Process, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	return &Process{
		Cmd:    cmd,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		pid:    cmd.Process.Pid,
	}, nil
}

// PID returns the process ID.
func (p *Process) PID() int {
	return p.pid
}

// Wait waits for the process to exit and returns its exit code.
// Returns -1 if the process was killed by a signal.
func (p *Process) Wait() (int, error) {
	err := p.Cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Kill forcibly stops the process and its group.
func (p *Process) Kill() error {
	return kill(p.Cmd)
}

// Terminate asks the process to exit.
func (p *Process) Terminate() error {
	return terminate(p.Cmd)
}
