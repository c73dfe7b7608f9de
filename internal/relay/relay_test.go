package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jsamuel1/agi-diy/internal/model"
	"github.com/jsamuel1/agi-diy/internal/registry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errBroken = errors.New("broken pipe")

// fakeConn records every frame sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errBroken
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// received decodes every recorded frame.
func (c *fakeConn) received() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) raw() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = string(f)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

var _ registry.Conn = (*fakeConn)(nil)

// fakeSupervisor tracks launched ids without spawning anything.
type fakeSupervisor struct {
	mu       sync.Mutex
	launched map[string]bool
	commands map[string][]string
	exited   map[string]bool
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		launched: make(map[string]bool),
		commands: make(map[string][]string),
		exited:   make(map[string]bool),
	}
}

func (s *fakeSupervisor) Launch(_ context.Context, req model.LaunchRequest) (*model.AgentInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.launched[req.AgentID] {
		return nil, fmt.Errorf("agent %s: %w", req.AgentID, model.ErrAgentExists)
	}
	s.launched[req.AgentID] = true
	return &model.AgentInfo{ID: req.AgentID, PeerID: model.VirtualPeerID(req.AgentID), PID: 4242}, nil
}

func (s *fakeSupervisor) SendCommand(agentID string, command json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.launched[agentID] {
		return model.ErrAgentNotFound
	}
	if s.exited[agentID] {
		return model.ErrAgentTerminated
	}
	s.commands[agentID] = append(s.commands[agentID], string(command))
	return nil
}

func (s *fakeSupervisor) DiscoverExternal(context.Context) []model.DiscoveredAgent {
	return []model.DiscoveredAgent{{ID: "kiro-77", PID: "77", Agent: "default", Cwd: "/work", Discovered: true}}
}

func (s *fakeSupervisor) ActiveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.launched))
	for id := range s.launched {
		ids = append(ids, id)
	}
	return ids
}

func (s *fakeSupervisor) Cards() []model.AgentCard {
	return []model.AgentCard{{Name: "kiro-cli"}}
}

func (s *fakeSupervisor) launchedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.launched)
}
