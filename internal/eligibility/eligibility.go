package eligibility

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Gate answers whether an applicant may attempt a test right now.
type Gate interface {
	IsEligible(ctx context.Context, applicantID, testID int64) (bool, error)
}

// SQLGate requires a completed applicant profile before any attempt.
type SQLGate struct {
	db *sql.DB
}

func NewSQLGate(db *sql.DB) *SQLGate {
	return &SQLGate{db: db}
}

func (g *SQLGate) IsEligible(ctx context.Context, applicantID, testID int64) (bool, error) {
	var completed bool
	err := g.db.QueryRowContext(ctx, `
		SELECT profile_completed
		FROM applicants
		WHERE id = $1
	`, applicantID).Scan(&completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load applicant profile: %w", err)
	}
	return completed, nil
}

// StaticGate returns a fixed answer. Used in tests.
type StaticGate struct {
	Eligible bool
	Err      error
}

func (g StaticGate) IsEligible(ctx context.Context, applicantID, testID int64) (bool, error) {
	return g.Eligible, g.Err
}
