package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jsamuel1/agi-diy/internal/model"
)

// AgentRunRepository provides data access for agent run history.
type AgentRunRepository struct {
	db *sql.DB
}

// NewAgentRunRepository creates a new AgentRunRepository.
func NewAgentRunRepository(db *sql.DB) *AgentRunRepository {
	return &AgentRunRepository{db: db}
}

const runColumns = `id, agent_id, profile, workdir, pid, status, exit_code, started_at, ended_at`

// Create inserts a new run.
func (r *AgentRunRepository) Create(ctx context.Context, run *model.AgentRun) error {
	query := `
		INSERT INTO agent_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var endedAt *time.Time
	if run.EndedAt != nil {
		t := run.EndedAt.UTC()
		endedAt = &t
	}

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.AgentID,
		run.Profile,
		run.Workdir,
		run.PID,
		run.Status,
		run.ExitCode,
		run.StartedAt.UTC(),
		endedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create agent run: %w", err)
	}

	return nil
}

// Finish records how a run ended.
func (r *AgentRunRepository) Finish(ctx context.Context, id string, status model.AgentStatus, exitCode *int, endedAt time.Time) error {
	query := `
		UPDATE agent_runs
		SET status = ?, exit_code = ?, ended_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, status, exitCode, endedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish agent run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrRunNotFound
	}

	return nil
}

// AbandonRunning marks every run still recorded as running as failed. It is
// used at startup, when no process from an earlier relay can still be ours.
func (r *AgentRunRepository) AbandonRunning(ctx context.Context, endedAt time.Time) (int64, error) {
	query := `
		UPDATE agent_runs
		SET status = ?, ended_at = ?
		WHERE status = ?
	`

	result, err := r.db.ExecContext(ctx, query, model.AgentStatusFailed, endedAt.UTC(), model.AgentStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon agent runs: %w", err)
	}
	return result.RowsAffected()
}

// GetByID retrieves a run by its ID.
func (r *AgentRunRepository) GetByID(ctx context.Context, id string) (*model.AgentRun, error) {
	query := `SELECT ` + runColumns + ` FROM agent_runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs first. An empty agentID lists every
// agent; a non-positive limit returns all rows.
func (r *AgentRunRepository) List(ctx context.Context, agentID string, limit int) ([]*model.AgentRun, error) {
	query := `SELECT ` + runColumns + ` FROM agent_runs`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent runs: %w", err)
	}
	defer rows.Close()

	runs := []*model.AgentRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent runs: %w", err)
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*model.AgentRun, error) {
	run := &model.AgentRun{}
	var pid sql.NullInt64
	var exitCode sql.NullInt64
	var endedAt sql.NullTime

	err := s.Scan(
		&run.ID,
		&run.AgentID,
		&run.Profile,
		&run.Workdir,
		&pid,
		&run.Status,
		&exitCode,
		&run.StartedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	if pid.Valid {
		p := int(pid.Int64)
		run.PID = &p
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}

	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}

	return run, nil
}
