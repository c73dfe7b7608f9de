// Package agent supervises locally launched agent processes and exposes each
// one to the relay as a virtual peer.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jsamuel1/agi-diy/internal/buffer"
	"github.com/jsamuel1/agi-diy/internal/message"
	"github.com/jsamuel1/agi-diy/internal/model"
	"github.com/jsamuel1/agi-diy/internal/relay"
	"github.com/jsamuel1/agi-diy/internal/transcript"
)

const (
	// DefaultCommand is the agent executable.
	DefaultCommand = "kiro-cli"

	// DefaultGracePeriod is how long ShutdownAll waits after SIGTERM.
	DefaultGracePeriod = 5 * time.Second

	// DefaultOutputBuffer is the per-agent output ring size (64KB).
	DefaultOutputBuffer = 64 * 1024

	// DefaultReadBufferSize is the chunk size used when draining output.
	DefaultReadBufferSize = 4096
)

// Announcer broadcasts relay-originated frames.
type Announcer interface {
	Announce(out message.Outbound, exclude string) []relay.Delivery
}

// RunStore persists the history of agent launches.
type RunStore interface {
	Create(ctx context.Context, run *model.AgentRun) error
	Finish(ctx context.Context, id string, status model.AgentStatus, exitCode *int, endedAt time.Time) error
}

// Options configures a Supervisor.
type Options struct {
	// Command is the agent executable. Defaults to DefaultCommand.
	Command string

	// GracePeriod is the wait between SIGTERM and SIGKILL at shutdown.
	GracePeriod time.Duration

	// OutputBuffer is the size of each agent's output ring.
	OutputBuffer int

	// TranscriptDir, when set, receives one stdio transcript per run.
	TranscriptDir string
}

// Option customizes a Supervisor beyond its Options.
type Option func(*Supervisor)

// WithInvocation replaces how the command line is built from an agent
// profile and working directory.
func WithInvocation(build func(command, profile, workdir string) (string, []string)) Option {
	return func(s *Supervisor) { s.invocation = build }
}

// WithProcessLister replaces the OS process table source used for discovery.
func WithProcessLister(l ProcessLister) Option {
	return func(s *Supervisor) { s.lister = l }
}

// WithRunStore records every launch in store.
func WithRunStore(store RunStore) Option {
	return func(s *Supervisor) { s.runs = store }
}

// Invocation is the fixed command line contract of the agent CLI.
func Invocation(command, profile, workdir string) (string, []string) {
	return command, []string{"acp", "--agent", profile, "--cwd", workdir}
}

// Agent is a supervised process.
type Agent struct {
	ID        string
	RunID     string
	Config    model.AgentConfig
	Workdir   string
	Process   *Process
	Output    *buffer.RingBuffer
	StartedAt time.Time

	recorder *transcript.Recorder

	stopping atomic.Bool

	// writeMu serializes stdin writes apart from mu, which guards state.
	writeMu sync.Mutex

	mu       sync.Mutex
	status   model.AgentStatus
	exitCode *int
	done     chan struct{}
}

// Info returns a snapshot of the agent's state.
func (a *Agent) Info() model.AgentInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.AgentInfo{
		ID:        a.ID,
		PeerID:    model.VirtualPeerID(a.ID),
		RunID:     a.RunID,
		Profile:   a.Config.Profile(),
		Workdir:   a.Workdir,
		PID:       a.Process.PID(),
		Status:    a.status,
		ExitCode:  a.exitCode,
		StartedAt: a.StartedAt,
	}
}

// Exited reports whether the process has finished.
func (a *Agent) Exited() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Done is closed once the process has exited and its output is drained.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Supervisor launches, tracks and tears down agent processes.
type Supervisor struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	reserved map[string]struct{}

	opts       Options
	announcer  Announcer
	runs       RunStore
	lister     ProcessLister
	invocation func(command, profile, workdir string) (string, []string)
	logger     *slog.Logger
	now        func() time.Time
}

// NewSupervisor creates a supervisor that announces agent presence through a.
func NewSupervisor(opts Options, a Announcer, logger *slog.Logger, options ...Option) *Supervisor {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.OutputBuffer <= 0 {
		opts.OutputBuffer = DefaultOutputBuffer
	}

	s := &Supervisor{
		agents:     make(map[string]*Agent),
		reserved:   make(map[string]struct{}),
		opts:       opts,
		announcer:  a,
		lister:     systemLister{},
		invocation: Invocation,
		logger:     logger,
		now:        time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Launch starts an agent process for req. It fails with ErrAgentExists while
// the id is tracked or starting, including after the process has exited, and
// with ErrWorkdirNotFound when the working directory is missing.
func (s *Supervisor) Launch(ctx context.Context, req model.LaunchRequest) (*model.AgentInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.reserve(req.AgentID); err != nil {
		return nil, err
	}
	defer s.release(req.AgentID)

	workdir, err := resolveWorkdir(req.Config.Workdir())
	if err != nil {
		return nil, err
	}

	cfg := req.Config
	cfg.ID = req.AgentID
	command, args := s.invocation(s.opts.Command, cfg.Profile(), workdir)

	run := &model.AgentRun{
		ID:        uuid.New().String(),
		AgentID:   req.AgentID,
		Profile:   cfg.Profile(),
		Workdir:   workdir,
		Status:    model.AgentStatusRunning,
		StartedAt: s.now(),
	}

	proc, err := Start(StartOptions{Command: command, Args: args, Dir: workdir})
	if err != nil {
		run.Status = model.AgentStatusFailed
		ended := s.now()
		run.EndedAt = &ended
		s.recordRun(ctx, run)
		return nil, fmt.Errorf("launch %s: %w", req.AgentID, err)
	}
	pid := proc.PID()
	run.PID = &pid
	s.recordRun(ctx, run)

	a := &Agent{
		ID:        req.AgentID,
		RunID:     run.ID,
		Config:    cfg,
		Workdir:   workdir,
		Process:   proc,
		Output:    buffer.NewRingBuffer(s.opts.OutputBuffer),
		StartedAt: run.StartedAt,
		status:    model.AgentStatusRunning,
		done:      make(chan struct{}),
	}

	if s.opts.TranscriptDir != "" {
		rec, err := transcript.Create(s.opts.TranscriptDir, transcript.Header{
			AgentID: a.ID,
			RunID:   a.RunID,
			Command: append([]string{command}, args...),
			Workdir: workdir,
		})
		if err != nil {
			s.logger.Warn("transcript disabled", "agent_id", a.ID, "error", err)
		} else {
			a.recorder = rec
		}
	}

	s.mu.Lock()
	s.agents[a.ID] = a
	s.mu.Unlock()

	var drained sync.WaitGroup
	drained.Add(2)
	go s.readLoop(a, proc.Stdout, transcript.Stdout, &drained)
	go s.readLoop(a, proc.Stderr, transcript.Stderr, &drained)
	go s.waitLoop(a, &drained)

	s.logger.Info("launched agent",
		"agent_id", a.ID,
		"pid", pid,
		"command", command,
		"args", args,
	)

	if s.announcer != nil {
		s.announcer.Announce(message.VirtualOnline(a.ID, cfg.Profile(), s.now()), "")
	}

	info := a.Info()
	return &info, nil
}

// SendCommand writes command to the agent's stdin as one compact JSON line.
// It only acknowledges the write; replies arrive on the agent's output.
func (s *Supervisor) SendCommand(agentID string, command json.RawMessage) error {
	a, ok := s.Get(agentID)
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, model.ErrAgentNotFound)
	}
	if a.Exited() {
		return fmt.Errorf("agent %s: %w", agentID, model.ErrAgentTerminated)
	}

	var line bytes.Buffer
	if len(command) == 0 {
		command = json.RawMessage(`{}`)
	}
	if err := json.Compact(&line, command); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}
	line.WriteByte('\n')

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if _, err := a.Process.Stdin.Write(line.Bytes()); err != nil {
		return fmt.Errorf("failed to write to agent %s: %w", agentID, err)
	}
	if a.recorder != nil {
		if err := a.recorder.Record(transcript.Stdin, line.Bytes()); err != nil {
			s.logger.Debug("transcript write failed", "agent_id", agentID, "error", err)
		}
	}
	return nil
}

// Get returns the tracked agent with the given id.
func (s *Supervisor) Get(agentID string) (*Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	return a, ok
}

// List returns every tracked agent sorted by id.
func (s *Supervisor) List() []model.AgentInfo {
	s.mu.RLock()
	agents := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	s.mu.RUnlock()

	infos := make([]model.AgentInfo, len(agents))
	for i, a := range agents {
		infos[i] = a.Info()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// ActiveIDs returns the ids of every tracked agent, sorted.
func (s *Supervisor) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Output returns the last lines of an agent's combined output. A
// non-positive lines returns everything buffered.
func (s *Supervisor) Output(agentID string, lines int) ([]byte, error) {
	a, ok := s.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, model.ErrAgentNotFound)
	}
	if lines <= 0 {
		return a.Output.Bytes(), nil
	}
	return a.Output.Tail(lines), nil
}

// AutoStart launches every configured agent flagged for automatic start.
// Failures are logged and skipped.
func (s *Supervisor) AutoStart(ctx context.Context, configs []model.AgentConfig) int {
	started := 0
	for _, cfg := range configs {
		if !cfg.AutoStart {
			continue
		}
		if _, err := s.Launch(ctx, model.LaunchRequest{AgentID: cfg.ID, Config: cfg}); err != nil {
			s.logger.Error("auto-start failed", "agent_id", cfg.ID, "error", err)
			continue
		}
		started++
	}
	return started
}

// ShutdownAll terminates every tracked process: SIGTERM, then SIGKILL once
// the grace period lapses. It never fails; per-process errors are logged.
func (s *Supervisor) ShutdownAll(ctx context.Context) {
	s.mu.RLock()
	agents := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, a := range agents {
		if a.Exited() {
			continue
		}
		wg.Add(1)
		go func(a *Agent) {
			defer wg.Done()
			s.stop(ctx, a)
		}(a)
	}
	wg.Wait()
}

func (s *Supervisor) stop(ctx context.Context, a *Agent) {
	a.stopping.Store(true)

	if err := a.Process.Stdin.Close(); err != nil {
		s.logger.Debug("closing stdin failed", "agent_id", a.ID, "error", err)
	}
	if err := a.Process.Terminate(); err != nil {
		s.logger.Warn("terminate failed", "agent_id", a.ID, "error", err)
	}

	timer := time.NewTimer(s.opts.GracePeriod)
	defer timer.Stop()

	select {
	case <-a.done:
		s.logger.Info("agent stopped", "agent_id", a.ID)
		return
	case <-timer.C:
	case <-ctx.Done():
	}

	s.logger.Warn("agent ignored SIGTERM, killing", "agent_id", a.ID, "grace", s.opts.GracePeriod)
	if err := a.Process.Kill(); err != nil {
		s.logger.Error("kill failed", "agent_id", a.ID, "error", err)
		return
	}
	select {
	case <-a.done:
	case <-time.After(s.opts.GracePeriod):
		s.logger.Error("agent did not exit after kill", "agent_id", a.ID)
	}
}

func (s *Supervisor) reserve(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reserved[agentID]; ok {
		return fmt.Errorf("agent %s: %w", agentID, model.ErrAgentExists)
	}
	if _, ok := s.agents[agentID]; ok {
		return fmt.Errorf("agent %s: %w", agentID, model.ErrAgentExists)
	}
	s.reserved[agentID] = struct{}{}
	return nil
}

func (s *Supervisor) release(agentID string) {
	s.mu.Lock()
	delete(s.reserved, agentID)
	s.mu.Unlock()
}

// readLoop drains one output pipe into the ring buffer and transcript.
func (s *Supervisor) readLoop(a *Agent, r io.Reader, stream transcript.Stream, drained *sync.WaitGroup) {
	defer drained.Done()

	buf := make([]byte, DefaultReadBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := buf[:n]
			a.Output.Write(data)
			if a.recorder != nil {
				if err := a.recorder.Record(stream, data); err != nil {
					s.logger.Debug("transcript write failed", "agent_id", a.ID, "error", err)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("output read ended", "agent_id", a.ID, "stream", stream, "error", err)
			}
			return
		}
	}
}

// waitLoop reaps the process once its output is drained and records the exit.
func (s *Supervisor) waitLoop(a *Agent, drained *sync.WaitGroup) {
	drained.Wait()
	code, err := a.Process.Wait()
	ended := s.now()

	stopping := a.stopping.Load()

	a.mu.Lock()
	switch {
	case stopping:
		a.status = model.AgentStatusStopped
	case err != nil || code != 0:
		a.status = model.AgentStatusFailed
	default:
		a.status = model.AgentStatusExited
	}
	a.exitCode = &code
	status := a.status
	if a.recorder != nil {
		a.recorder.Close()
	}
	a.mu.Unlock()
	close(a.done)

	s.logger.Info("agent exited",
		"agent_id", a.ID,
		"exit_code", code,
		"status", status,
		"error", err,
	)

	if s.runs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.runs.Finish(ctx, a.RunID, status, &code, ended); err != nil {
			s.logger.Warn("failed to record agent exit", "agent_id", a.ID, "run_id", a.RunID, "error", err)
		}
	}

	if !stopping && s.announcer != nil {
		s.announcer.Announce(message.Offline(model.VirtualPeerID(a.ID), ended), "")
	}
}

func (s *Supervisor) recordRun(ctx context.Context, run *model.AgentRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Warn("failed to record agent run", "agent_id", run.AgentID, "run_id", run.ID, "error", err)
	}
}

// resolveWorkdir expands a leading ~ and checks that the result is a
// directory.
func resolveWorkdir(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", model.ErrWorkdirNotFound, path)
	}
	return path, nil
}
