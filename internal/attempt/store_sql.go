package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"admitest/internal/catalog"
)

// SQLStore persists attempts in Postgres or SQLite. The frozen test snapshot
// and the result breakdown are stored as JSON alongside the row. Per-attempt
// serialization uses a row lock on Postgres; SQLite serializes writers at the
// database level.
type SQLStore struct {
	db     *sql.DB
	driver string // "postgres" or "sqlite"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) forUpdate() string {
	if s.driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

func (s *SQLStore) Create(ctx context.Context, a *Attempt) error {
	snapshot, err := json.Marshal(a.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM attempts
		WHERE test_id = $1 AND applicant_id = $2 AND status = 'in_progress'
	`+s.forUpdate(), a.TestID, a.ApplicantID).Scan(&existing)
	if err == nil {
		return ErrAlreadyInProgress
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check in-progress attempt: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attempts (id, test_id, applicant_id, status, started_at, snapshot_json)
		VALUES ($1, $2, $3, 'in_progress', $4, $5)
	`, a.ID, a.TestID, a.ApplicantID, a.StartedAt.UTC(), string(snapshot))
	if err != nil {
		// Partial unique index on (test_id, applicant_id) WHERE in_progress
		// backstops the check above under concurrent starts.
		if isUniqueViolation(err) {
			return ErrAlreadyInProgress
		}
		return fmt.Errorf("insert attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, attemptID string) (*Attempt, error) {
	return s.load(ctx, s.db, attemptID, false)
}

func (s *SQLStore) UpsertAnswer(ctx context.Context, attemptID string, questionID int64, option string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin answer tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM attempts WHERE id = $1
	`+s.forUpdate(), attemptID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("load attempt status: %w", err)
	}
	if status != StatusInProgress {
		return ErrAttemptCompleted
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attempt_answers (attempt_id, question_id, selected_option, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (attempt_id, question_id)
		DO UPDATE SET selected_option = EXCLUDED.selected_option, updated_at = EXCLUDED.updated_at
	`, attemptID, questionID, option, now)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit answer: %w", err)
	}
	return nil
}

func (s *SQLStore) Finalize(ctx context.Context, attemptID string, finalize FinalizeFunc) (*Result, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := s.load(ctx, tx, attemptID, true)
	if err != nil {
		return nil, false, err
	}

	if a.Status != StatusInProgress {
		r, err := s.resultByAttempt(ctx, tx, attemptID)
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit finalize noop: %w", err)
		}
		return r, false, nil
	}

	result, err := finalize(a)
	if err != nil {
		return nil, false, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET status = 'completed', finish_reason = $1, finished_at = $2
		WHERE id = $3 AND status = 'in_progress'
	`, result.FinishReason, result.CreatedAt.UTC(), attemptID)
	if err != nil {
		return nil, false, fmt.Errorf("complete attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("complete attempt rows: %w", err)
	}
	if affected != 1 {
		return nil, false, fmt.Errorf("complete attempt: lost update race on %s", attemptID)
	}

	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return nil, false, fmt.Errorf("encode breakdown: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO results (
			id, attempt_id, test_id, applicant_id,
			total_questions, answered_questions, correct_answers,
			total_score, max_possible_score, score_percentage, is_passed,
			finish_reason, time_spent_seconds, breakdown_json, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, result.ID, result.AttemptID, result.TestID, result.ApplicantID,
		result.TotalQuestions, result.AnsweredCount, result.CorrectAnswers,
		result.TotalScore, result.MaxPossibleScore, result.ScorePercentage, result.IsPassed,
		result.FinishReason, result.TimeSpentSeconds, string(breakdown), result.CreatedAt.UTC())
	if err != nil {
		return nil, false, fmt.Errorf("insert result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit finalize: %w", err)
	}
	return result, true, nil
}

func (s *SQLStore) GetResultByAttempt(ctx context.Context, attemptID string) (*Result, error) {
	return s.resultByAttempt(ctx, s.db, attemptID)
}

func (s *SQLStore) GetResult(ctx context.Context, resultID string) (*Result, error) {
	return s.scanResult(s.db.QueryRowContext(ctx, resultQuery+` WHERE id = $1`, resultID))
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *SQLStore) load(ctx context.Context, q queryable, attemptID string, locked bool) (*Attempt, error) {
	query := `
		SELECT id, test_id, applicant_id, status, finish_reason, started_at, finished_at, snapshot_json
		FROM attempts
		WHERE id = $1`
	if locked {
		query += s.forUpdate()
	}

	var (
		a            Attempt
		finishReason sql.NullString
		finishedAt   sql.NullTime
		snapshotJSON string
	)
	err := q.QueryRowContext(ctx, query, attemptID).Scan(
		&a.ID, &a.TestID, &a.ApplicantID, &a.Status, &finishReason, &a.StartedAt, &finishedAt, &snapshotJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	a.FinishReason = finishReason.String
	if finishedAt.Valid {
		t := finishedAt.Time
		a.FinishedAt = &t
	}

	var snapshot catalog.Test
	if err := json.Unmarshal([]byte(snapshotJSON), &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	a.Snapshot = snapshot

	answers, err := s.loadAnswers(ctx, q, attemptID)
	if err != nil {
		return nil, err
	}
	a.Answers = answers
	return &a, nil
}

func (s *SQLStore) loadAnswers(ctx context.Context, q queryable, attemptID string) (map[int64]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT question_id, selected_option
		FROM attempt_answers
		WHERE attempt_id = $1
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var (
			questionID int64
			option     string
		)
		if err := rows.Scan(&questionID, &option); err != nil {
			return nil, fmt.Errorf("scan answer row: %w", err)
		}
		out[questionID] = option
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

const resultQuery = `
	SELECT id, attempt_id, test_id, applicant_id,
		total_questions, answered_questions, correct_answers,
		total_score, max_possible_score, score_percentage, is_passed,
		finish_reason, time_spent_seconds, breakdown_json, created_at
	FROM results`

func (s *SQLStore) resultByAttempt(ctx context.Context, q queryable, attemptID string) (*Result, error) {
	return s.scanResult(q.QueryRowContext(ctx, resultQuery+` WHERE attempt_id = $1`, attemptID))
}

func (s *SQLStore) scanResult(row *sql.Row) (*Result, error) {
	var (
		r             Result
		breakdownJSON string
	)
	err := row.Scan(
		&r.ID, &r.AttemptID, &r.TestID, &r.ApplicantID,
		&r.TotalQuestions, &r.AnsweredCount, &r.CorrectAnswers,
		&r.TotalScore, &r.MaxPossibleScore, &r.ScorePercentage, &r.IsPassed,
		&r.FinishReason, &r.TimeSpentSeconds, &breakdownJSON, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("load result: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdownJSON), &r.Breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}
	return &r, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
