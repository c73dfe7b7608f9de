package model

import (
	"strings"
	"time"
)

const (
	// VirtualPeerPrefix is prepended to an agent id to form its registry-visible peer id.
	VirtualPeerPrefix = "kiro-"

	// AgentKind is the "type" advertised in a supervised agent's presence metadata.
	AgentKind = "kiro-cli"

	// DefaultProfile is the agent profile used when none is configured.
	DefaultProfile = "default"

	// DefaultWorkingPath is the working directory used when none is configured.
	DefaultWorkingPath = "~/src"
)

// AgentConfig is the launch configuration of a supervised agent. The field
// names match both the persisted config document and the launch_agent wire
// request.
type AgentConfig struct {
	ID          string `json:"id,omitempty" yaml:"id"`
	WorkingPath string `json:"workingPath,omitempty" yaml:"workingPath"`
	Agent       string `json:"agent,omitempty" yaml:"agent"`
	AutoStart   bool   `json:"autoStart,omitempty" yaml:"autoStart"`
}

// Profile returns the configured agent profile or DefaultProfile.
func (c AgentConfig) Profile() string {
	if c.Agent == "" {
		return DefaultProfile
	}
	return c.Agent
}

// Workdir returns the configured working path or DefaultWorkingPath.
func (c AgentConfig) Workdir() string {
	if c.WorkingPath == "" {
		return DefaultWorkingPath
	}
	return c.WorkingPath
}

// VirtualPeerID derives the presence identity of a supervised agent.
func VirtualPeerID(agentID string) string {
	return VirtualPeerPrefix + agentID
}

// AgentStatus represents the lifecycle state of a supervised agent process.
type AgentStatus string

const (
	AgentStatusRunning AgentStatus = "running"
	AgentStatusExited  AgentStatus = "exited"
	AgentStatusFailed  AgentStatus = "failed"
	AgentStatusStopped AgentStatus = "stopped"
)

// AgentInfo describes a tracked agent process.
type AgentInfo struct {
	ID        string      `json:"id"`
	PeerID    string      `json:"peerId"`
	RunID     string      `json:"runId"`
	Profile   string      `json:"agent"`
	Workdir   string      `json:"workingPath"`
	PID       int         `json:"pid"`
	Status    AgentStatus `json:"status"`
	ExitCode  *int        `json:"exitCode,omitempty"`
	StartedAt time.Time   `json:"startedAt"`
}

// DiscoveredAgent is an agent process found by inspecting the OS process
// table rather than launched by the supervisor.
type DiscoveredAgent struct {
	ID         string `json:"id"`
	PID        string `json:"pid"`
	Agent      string `json:"agent"`
	Cwd        string `json:"cwd"`
	Discovered bool   `json:"discovered"`
}

// AgentRun is the persisted history record of one agent launch.
type AgentRun struct {
	ID        string      `json:"id"`
	AgentID   string      `json:"agentId"`
	Profile   string      `json:"agent"`
	Workdir   string      `json:"workingPath"`
	PID       *int        `json:"pid,omitempty"`
	Status    AgentStatus `json:"status"`
	ExitCode  *int        `json:"exitCode,omitempty"`
	StartedAt time.Time   `json:"startedAt"`
	EndedAt   *time.Time  `json:"endedAt,omitempty"`
}

// Duration returns how long the run lasted, or has lasted so far.
func (r *AgentRun) Duration() time.Duration {
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// LaunchRequest is a request to start a supervised agent.
type LaunchRequest struct {
	AgentID string
	Config  AgentConfig
}

// Validate validates the launch request.
func (r *LaunchRequest) Validate() error {
	if strings.TrimSpace(r.AgentID) == "" {
		return ErrAgentIDRequired
	}
	return nil
}
