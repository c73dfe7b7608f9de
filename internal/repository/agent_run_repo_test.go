package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuel1/agi-diy/internal/db"
	"github.com/jsamuel1/agi-diy/internal/model"
)

func newRepo(t *testing.T) *AgentRunRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })
	return NewAgentRunRepository(testDB)
}

func newRun(agentID string, started time.Time) *model.AgentRun {
	pid := 4242
	return &model.AgentRun{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Profile:   "default",
		Workdir:   "/src",
		PID:       &pid,
		Status:    model.AgentStatusRunning,
		StartedAt: started,
	}
}

func TestCreateAndFinish(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	run := newRun("x", started)
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.AgentID)
	assert.Equal(t, model.AgentStatusRunning, got.Status)
	require.NotNil(t, got.PID)
	assert.Equal(t, 4242, *got.PID)
	assert.Nil(t, got.ExitCode)
	assert.Nil(t, got.EndedAt)
	assert.True(t, started.Equal(got.StartedAt))

	code := 2
	ended := started.Add(90 * time.Second)
	require.NoError(t, repo.Finish(ctx, run.ID, model.AgentStatusFailed, &code, ended))

	got, err = repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AgentStatusFailed, got.Status)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 2, *got.ExitCode)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, 90*time.Second, got.Duration())
}

func TestMissingRun(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrRunNotFound)

	err = repo.Finish(ctx, "nope", model.AgentStatusExited, nil, time.Now())
	assert.ErrorIs(t, err, model.ErrRunNotFound)
}

func TestCreateFailedRunWithoutPID(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	ended := time.Now()
	run := newRun("x", ended)
	run.PID = nil
	run.Status = model.AgentStatusFailed
	run.EndedAt = &ended
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PID)
	assert.NotNil(t, got.EndedAt)
}

func TestListOrderingAndFilter(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i, agent := range []string{"a", "b", "a", "a"} {
		run := newRun(agent, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, run))
		ids = append(ids, run.ID)
	}

	all, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID, "newest first")

	onlyA, err := repo.List(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, []string{ids[3], ids[2]}, []string{onlyA[0].ID, onlyA[1].ID})

	none, err := repo.List(ctx, "ghost", 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestAbandonRunning(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now()

	running := newRun("a", now)
	done := newRun("b", now)
	require.NoError(t, repo.Create(ctx, running))
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.Finish(ctx, done.ID, model.AgentStatusExited, nil, now))

	n, err := repo.AbandonRunning(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AgentStatusFailed, got.Status)
	got, err = repo.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AgentStatusExited, got.Status)
}

func TestFileBackedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "runs.db")
	fileDB, err := db.Open(path)
	require.NoError(t, err)

	repo := NewAgentRunRepository(fileDB)
	run := newRun("x", time.Now())
	require.NoError(t, repo.Create(context.Background(), run))
	require.NoError(t, fileDB.Close())

	reopened, err := db.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := NewAgentRunRepository(reopened).GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}

// Every finished run reads back with the status and exit code it was
// finished with.
func TestRunLifecycleProperty(t *testing.T) {
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	defer testDB.Close()

	repo := NewAgentRunRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	agentID := gen.Identifier()
	status := gen.OneConstOf(model.AgentStatusExited, model.AgentStatusFailed, model.AgentStatusStopped)

	properties.Property("finished runs persist status and exit code", prop.ForAll(
		func(agent string, st model.AgentStatus, code int) bool {
			run := newRun(agent, time.Now())
			if err := repo.Create(ctx, run); err != nil {
				return false
			}
			if err := repo.Finish(ctx, run.ID, st, &code, time.Now()); err != nil {
				return false
			}
			got, err := repo.GetByID(ctx, run.ID)
			if err != nil {
				return false
			}
			return got.AgentID == agent && got.Status == st &&
				got.ExitCode != nil && *got.ExitCode == code && got.EndedAt != nil
		},
		agentID,
		status,
		gen.IntRange(-1, 255),
	))

	properties.TestingRun(t)
	assertRowCount(t, testDB, parameters.MinSuccessfulTests)
}

func assertRowCount(t *testing.T, testDB *sql.DB, min int) {
	t.Helper()
	var count int
	if err := testDB.QueryRow(`SELECT COUNT(*) FROM agent_runs`).Scan(&count); err != nil {
		t.Fatalf("failed to count runs: %v", err)
	}
	if count < min {
		t.Errorf("expected at least %d runs, found %d", min, count)
	}
}
