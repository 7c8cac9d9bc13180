package db

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the tables and indexes the engine needs when they do
// not exist yet. Statements are kept portable between Postgres and SQLite;
// the few divergent ones are split per driver below.
func EnsureSchema(ctx context.Context, database *sql.DB, driver string) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS applicants (
			id BIGINT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'applicant',
			password_hash TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			profile_completed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS tests (
			id BIGINT PRIMARY KEY,
			title TEXT NOT NULL,
			time_limit_minutes INTEGER NOT NULL DEFAULT 0,
			passing_score_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			result_policy TEXT NOT NULL DEFAULT 'immediate',
			is_published BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id BIGINT PRIMARY KEY,
			test_id BIGINT NOT NULL REFERENCES tests(id),
			seq_no INTEGER NOT NULL DEFAULT 0,
			question_text TEXT NOT NULL,
			correct_option TEXT NOT NULL,
			points INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS question_options (
			question_id BIGINT NOT NULL REFERENCES questions(id),
			option_key TEXT NOT NULL,
			option_text TEXT NOT NULL,
			PRIMARY KEY (question_id, option_key)
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			test_id BIGINT NOT NULL,
			applicant_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			finish_reason TEXT,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			snapshot_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attempt_answers (
			attempt_id TEXT NOT NULL REFERENCES attempts(id),
			question_id BIGINT NOT NULL,
			selected_option TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (attempt_id, question_id)
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			attempt_id TEXT NOT NULL UNIQUE REFERENCES attempts(id),
			test_id BIGINT NOT NULL,
			applicant_id BIGINT NOT NULL,
			total_questions INTEGER NOT NULL,
			answered_questions INTEGER NOT NULL,
			correct_answers INTEGER NOT NULL,
			total_score INTEGER NOT NULL,
			max_possible_score INTEGER NOT NULL,
			score_percentage DOUBLE PRECISION NOT NULL,
			is_passed BOOLEAN NOT NULL,
			finish_reason TEXT NOT NULL,
			time_spent_seconds BIGINT NOT NULL,
			breakdown_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		// Backstop for the one-in-progress-attempt-per-pair rule under
		// concurrent starts.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_one_in_progress
			ON attempts (test_id, applicant_id) WHERE status = 'in_progress'`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_applicant ON attempts (applicant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_applicant ON results (applicant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_test ON questions (test_id)`,
	}

	for _, stmt := range statements {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema (%s): %w", driver, err)
		}
	}
	return nil
}
