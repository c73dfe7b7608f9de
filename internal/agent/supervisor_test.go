//go:build !windows

package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuel1/agi-diy/internal/message"
	"github.com/jsamuel1/agi-diy/internal/model"
	"github.com/jsamuel1/agi-diy/internal/relay"
)

type recordingAnnouncer struct {
	mu  sync.Mutex
	out []message.Outbound
}

func (r *recordingAnnouncer) Announce(out message.Outbound, _ string) []relay.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, out)
	return nil
}

func (r *recordingAnnouncer) presences(from string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []map[string]any
	for _, o := range r.out {
		if o.Type == message.KindPresence && o.From == from {
			found = append(found, o.Data.(map[string]any))
		}
	}
	return found
}

type memoryRuns struct {
	mu       sync.Mutex
	created  []model.AgentRun
	finished map[string]model.AgentStatus
}

func (m *memoryRuns) Create(_ context.Context, run *model.AgentRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *run)
	return nil
}

func (m *memoryRuns) Finish(_ context.Context, id string, status model.AgentStatus, _ *int, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = make(map[string]model.AgentStatus)
	}
	m.finished[id] = status
	return nil
}

func (m *memoryRuns) status(id string) (model.AgentStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.finished[id]
	return s, ok
}

// shell runs script with /bin/sh in place of the agent CLI.
func shell(script string) Option {
	return WithInvocation(func(_, _, _ string) (string, []string) {
		return "/bin/sh", []string{"-c", script}
	})
}

func newTestSupervisor(t *testing.T, opts Options, options ...Option) (*Supervisor, *recordingAnnouncer) {
	t.Helper()
	announcer := &recordingAnnouncer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSupervisor(opts, announcer, logger, options...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.ShutdownAll(ctx)
	})
	return s, announcer
}

func launchReq(id, workdir string) model.LaunchRequest {
	return model.LaunchRequest{AgentID: id, Config: model.AgentConfig{WorkingPath: workdir, Agent: "reviewer"}}
}

func TestLaunchAnnouncesVirtualPeer(t *testing.T) {
	dir := t.TempDir()
	s, announcer := newTestSupervisor(t, Options{}, shell("cat"))

	info, err := s.Launch(context.Background(), launchReq("x", dir))
	require.NoError(t, err)
	assert.Equal(t, "x", info.ID)
	assert.Equal(t, "kiro-x", info.PeerID)
	assert.Equal(t, "reviewer", info.Profile)
	assert.Equal(t, dir, info.Workdir)
	assert.Equal(t, model.AgentStatusRunning, info.Status)
	assert.Positive(t, info.PID)

	assert.Equal(t, []map[string]any{{"status": "online", "type": "kiro-cli", "agent": "reviewer"}}, announcer.presences("kiro-x"))
	assert.Equal(t, []string{"x"}, s.ActiveIDs())
}

func TestSendCommandWritesCompactLine(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{}, shell("cat"))
	_, err := s.Launch(context.Background(), launchReq("x", t.TempDir()))
	require.NoError(t, err)

	require.NoError(t, s.SendCommand("x", []byte(`{ "prompt" : "hi",  "n": 1 }`)))
	require.NoError(t, s.SendCommand("x", nil))

	require.Eventually(t, func() bool {
		out, _ := s.Output("x", 0)
		return string(out) == "{\"prompt\":\"hi\",\"n\":1}\n{}\n"
	}, 2*time.Second, 10*time.Millisecond)

	tail, err := s.Output("x", 1)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(tail))

	assert.Error(t, s.SendCommand("x", []byte(`{broken`)))
}

func TestSendCommandUnknownAgent(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{})

	err := s.SendCommand("ghost", []byte(`{}`))
	assert.ErrorIs(t, err, model.ErrAgentNotFound)

	_, err = s.Output("ghost", 10)
	assert.ErrorIs(t, err, model.ErrAgentNotFound)
}

func TestLaunchValidation(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{}, shell("cat"))

	_, err := s.Launch(context.Background(), launchReq("  ", t.TempDir()))
	assert.ErrorIs(t, err, model.ErrAgentIDRequired)

	_, err = s.Launch(context.Background(), launchReq("x", "/definitely/not/here"))
	assert.ErrorIs(t, err, model.ErrWorkdirNotFound)
	assert.Empty(t, s.ActiveIDs())
}

func TestConcurrentLaunchYieldsOneProcess(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{GracePeriod: 200 * time.Millisecond}, shell("exec sleep 30"))
	dir := t.TempDir()

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		conflict int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Launch(context.Background(), launchReq("x", dir))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrAgentExists):
				conflict++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflict)
	assert.Len(t, s.List(), 1)
}

func TestSelfExitMarksTerminated(t *testing.T) {
	runs := &memoryRuns{}
	s, announcer := newTestSupervisor(t, Options{}, shell("exit 3"), WithRunStore(runs))

	info, err := s.Launch(context.Background(), launchReq("x", t.TempDir()))
	require.NoError(t, err)

	a, ok := s.Get("x")
	require.True(t, ok)
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit")
	}

	assert.ErrorIs(t, s.SendCommand("x", []byte(`{}`)), model.ErrAgentTerminated)

	got := s.List()
	require.Len(t, got, 1)
	assert.Equal(t, model.AgentStatusFailed, got[0].Status)
	require.NotNil(t, got[0].ExitCode)
	assert.Equal(t, 3, *got[0].ExitCode)

	require.Eventually(t, func() bool {
		return len(announcer.presences("kiro-x")) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]any{"status": "offline"}, announcer.presences("kiro-x")[1])

	require.Eventually(t, func() bool {
		st, ok := runs.status(info.RunID)
		return ok && st == model.AgentStatusFailed
	}, time.Second, 10*time.Millisecond)
	require.Len(t, runs.created, 1)
	assert.Equal(t, "x", runs.created[0].AgentID)
}

func TestExitedAgentStaysTracked(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{}, shell("exit 0"))
	dir := t.TempDir()

	first, err := s.Launch(context.Background(), launchReq("x", dir))
	require.NoError(t, err)
	a, _ := s.Get("x")
	<-a.Done()

	_, err = s.Launch(context.Background(), launchReq("x", dir))
	assert.ErrorIs(t, err, model.ErrAgentExists)
	assert.Equal(t, []string{"x"}, s.ActiveIDs())

	a, _ = s.Get("x")
	assert.Equal(t, first.RunID, a.RunID, "entry must not be replaced")
}

func TestLaunchConflictBeforeWorkdirCheck(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{}, shell("cat"))
	_, err := s.Launch(context.Background(), launchReq("x", t.TempDir()))
	require.NoError(t, err)

	_, err = s.Launch(context.Background(), launchReq("x", "/nonexistent/workdir"))
	assert.ErrorIs(t, err, model.ErrAgentExists)
}

func TestBlockedCommandWriteLeavesStateReadable(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{}, shell("exec sleep 30"))
	_, err := s.Launch(context.Background(), launchReq("x", t.TempDir()))
	require.NoError(t, err)

	// larger than any pipe buffer, and the child never reads stdin
	big := []byte(`{"prompt":"` + strings.Repeat("a", 200*1024) + `"}`)
	go s.SendCommand("x", big)
	time.Sleep(100 * time.Millisecond)

	listed := make(chan []model.AgentInfo, 1)
	go func() { listed <- s.List() }()

	select {
	case infos := <-listed:
		require.Len(t, infos, 1)
		assert.Equal(t, model.AgentStatusRunning, infos[0].Status)
	case <-time.After(time.Second):
		t.Fatal("List blocked behind a pending stdin write")
	}

	_, err = s.Output("x", 10)
	assert.NoError(t, err)
}

func TestShutdownAllEscalatesToKill(t *testing.T) {
	grace := 200 * time.Millisecond
	s, announcer := newTestSupervisor(t, Options{GracePeriod: grace},
		shell("trap '' TERM; while true; do sleep 0.05; done"))

	_, err := s.Launch(context.Background(), launchReq("stubborn", t.TempDir()))
	require.NoError(t, err)
	// let the shell install its trap
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	s.ShutdownAll(context.Background())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, grace)
	assert.Less(t, elapsed, grace+2*time.Second)

	a, _ := s.Get("stubborn")
	assert.True(t, a.Exited())
	assert.Equal(t, model.AgentStatusStopped, a.Info().Status)
	assert.Len(t, announcer.presences("kiro-stubborn"), 1, "no offline announcement during shutdown")
}

func TestShutdownAllGraceful(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{GracePeriod: 5 * time.Second}, shell("cat"))
	for _, id := range []string{"a", "b"} {
		_, err := s.Launch(context.Background(), launchReq(id, t.TempDir()))
		require.NoError(t, err)
	}

	start := time.Now()
	s.ShutdownAll(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second)

	for _, info := range s.List() {
		assert.Equal(t, model.AgentStatusStopped, info.Status, info.ID)
	}
}

func TestStartFailureIsRecorded(t *testing.T) {
	runs := &memoryRuns{}
	s, _ := newTestSupervisor(t, Options{Command: "/nonexistent/kiro-cli"}, WithRunStore(runs))

	_, err := s.Launch(context.Background(), launchReq("x", t.TempDir()))
	require.Error(t, err)
	assert.Equal(t, "LAUNCH_FAILED", model.ErrorCode(err))
	assert.Empty(t, s.ActiveIDs())

	require.Len(t, runs.created, 1)
	assert.Equal(t, model.AgentStatusFailed, runs.created[0].Status)
	assert.NotNil(t, runs.created[0].EndedAt)
}

func TestAutoStart(t *testing.T) {
	s, _ := newTestSupervisor(t, Options{}, shell("cat"))
	dir := t.TempDir()

	started := s.AutoStart(context.Background(), []model.AgentConfig{
		{ID: "one", WorkingPath: dir, AutoStart: true},
		{ID: "two", WorkingPath: dir},
		{ID: "three", WorkingPath: "/missing/dir", AutoStart: true},
		{ID: "four", WorkingPath: dir, AutoStart: true},
	})

	assert.Equal(t, 2, started)
	assert.Equal(t, []string{"four", "one"}, s.ActiveIDs())
}

func TestInvocationContract(t *testing.T) {
	cmd, args := Invocation("kiro-cli", "reviewer", "/work")
	assert.Equal(t, "kiro-cli", cmd)
	assert.Equal(t, []string{"acp", "--agent", "reviewer", "--cwd", "/work"}, args)
}
