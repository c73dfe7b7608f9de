package model

import "errors"

var (
	// ErrAgentIDRequired is returned when a launch or command request has no agent id.
	ErrAgentIDRequired = errors.New("agent id is required")

	// ErrAgentExists is returned when launching an agent id that is already tracked.
	ErrAgentExists = errors.New("agent already exists")

	// ErrAgentNotFound is returned when an agent id is not tracked by the supervisor.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentTerminated is returned when the agent process has already exited.
	ErrAgentTerminated = errors.New("agent process terminated")

	// ErrWorkdirNotFound is returned when the configured working directory does not exist.
	ErrWorkdirNotFound = errors.New("working directory does not exist")

	// ErrConnClosed is returned when sending on a connection that has been closed.
	ErrConnClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a connection cannot keep up with outbound traffic.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrRunNotFound is returned when an agent run record does not exist.
	ErrRunNotFound = errors.New("agent run not found")
)

// ErrorCode maps a supervisor error to the stable code carried in error replies.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAgentIDRequired):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrAgentExists):
		return "AGENT_EXISTS"
	case errors.Is(err, ErrAgentNotFound):
		return "AGENT_NOT_FOUND"
	case errors.Is(err, ErrAgentTerminated):
		return "AGENT_TERMINATED"
	case errors.Is(err, ErrWorkdirNotFound):
		return "WORKDIR_NOT_FOUND"
	case errors.Is(err, ErrRunNotFound):
		return "RUN_NOT_FOUND"
	default:
		return "LAUNCH_FAILED"
	}
}
