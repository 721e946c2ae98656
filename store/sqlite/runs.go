package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
)

var _ leave.RunRecorder = (*Store)(nil)

// =============================================================================
// BATCH RUNS (leave.RunRecorder interface)
// =============================================================================

func (s *Store) RecordRun(ctx context.Context, run leave.Run) error {
	errs := run.Errors
	if errs == nil {
		errs = []leave.EmployeeError{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accrual_runs
		(id, kind, period_start, period_end, started_at, finished_at, processed, posted, skipped, errors_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), dateOrNull(run.Period.Start), dateOrNull(run.Period.End),
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Processed, run.Posted, run.Skipped, string(errorsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns recorded runs, newest first. An empty kind lists all
// kinds; limit <= 0 means 50.
func (s *Store) ListRuns(ctx context.Context, kind leave.RunKind, limit int) ([]leave.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, period_start, period_end, started_at, finished_at, processed, posted, skipped, errors_json
		FROM accrual_runs
		WHERE (? = '' OR kind = ?)
		ORDER BY started_at DESC
		LIMIT ?`,
		string(kind), string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []leave.Run
	for rows.Next() {
		var (
			r                 leave.Run
			kindStr           string
			start, end        sql.NullString
			started, finished string
			errorsJSON        string
		)
		if err := rows.Scan(&r.ID, &kindStr, &start, &end, &started, &finished,
			&r.Processed, &r.Posted, &r.Skipped, &errorsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Kind = leave.RunKind(kindStr)
		r.Period = calendar.Period{Start: parseDate(start), End: parseDate(end)}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		if err := json.Unmarshal([]byte(errorsJSON), &r.Errors); err != nil {
			return nil, fmt.Errorf("run %s: errors: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func dateOrNull(d calendar.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDate(s sql.NullString) calendar.Date {
	if !s.Valid {
		return calendar.Date{}
	}
	d, _ := calendar.Parse(s.String)
	return d
}
