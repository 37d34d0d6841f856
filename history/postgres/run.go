package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/architect"
	"github.com/xraph/architect/history"
	"github.com/xraph/architect/id"
	"github.com/xraph/architect/job"
)

const runColumns = `
	id, name, target, argument, state, outputs, last_output, error,
	scheduled_at, started_at, ended_at, elapsed_ns`

// SaveRun inserts the run or replaces the existing row.
func (s *Store) SaveRun(ctx context.Context, r *history.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO architect_runs (`+runColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, target = EXCLUDED.target,
			argument = EXCLUDED.argument, state = EXCLUDED.state,
			outputs = EXCLUDED.outputs, last_output = EXCLUDED.last_output,
			error = EXCLUDED.error, scheduled_at = EXCLUDED.scheduled_at,
			started_at = EXCLUDED.started_at, ended_at = EXCLUDED.ended_at,
			elapsed_ns = EXCLUDED.elapsed_ns`,
		r.ID.String(), r.Name, r.Target, nullJSON(r.Argument), string(r.State),
		r.Outputs, nullJSON(r.LastOutput), r.Error,
		r.ScheduledAt, r.StartedAt, r.EndedAt, r.Elapsed.Nanoseconds(),
	)
	if err != nil {
		if isUndefinedTable(err) {
			return fmt.Errorf("architect/postgres: save run (run Migrate first): %w", err)
		}
		return fmt.Errorf("architect/postgres: save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.JobID) (*history.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM architect_runs
		WHERE id = $1`,
		runID.String(),
	)

	r, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, architect.ErrRunNotFound
		}
		return nil, fmt.Errorf("architect/postgres: get run: %w", err)
	}
	return r, nil
}

// ListRuns returns matching runs, newest first.
func (s *Store) ListRuns(ctx context.Context, opts history.ListOpts) ([]*history.Run, error) {
	var (
		where []string
		args  []any
	)
	if opts.Name != "" {
		args = append(args, opts.Name)
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}
	if opts.State != "" {
		args = append(args, string(opts.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}

	query := `SELECT ` + runColumns + ` FROM architect_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_at DESC, id DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("architect/postgres: list runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// DeleteRun removes a run by ID.
func (s *Store) DeleteRun(ctx context.Context, runID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM architect_runs WHERE id = $1`, runID.String())
	if err != nil {
		return fmt.Errorf("architect/postgres: delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return architect.ErrRunNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (*history.Run, error) {
	var (
		r          history.Run
		idStr      string
		stateStr   string
		argument   []byte
		lastOutput []byte
		elapsedNs  int64
	)
	err := row.Scan(
		&idStr, &r.Name, &r.Target, &argument, &stateStr,
		&r.Outputs, &lastOutput, &r.Error,
		&r.ScheduledAt, &r.StartedAt, &r.EndedAt, &elapsedNs,
	)
	if err != nil {
		return nil, err
	}

	r.State = job.State(stateStr)
	r.Argument = argument
	r.LastOutput = lastOutput
	r.Elapsed = time.Duration(elapsedNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("architect/postgres: parse run id %q: %w", idStr, parseErr)
	}
	r.ID = parsedID

	return &r, nil
}

func collectRuns(rows pgx.Rows) ([]*history.Run, error) {
	var runs []*history.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("architect/postgres: scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("architect/postgres: iterate run rows: %w", err)
	}
	return runs, nil
}
