package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLProvider reads test definitions from the relational catalog tables.
type SQLProvider struct {
	db *sql.DB
}

func NewSQLProvider(db *sql.DB) *SQLProvider {
	return &SQLProvider{db: db}
}

func (p *SQLProvider) GetTest(ctx context.Context, testID int64) (*Test, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, title, time_limit_minutes, passing_score_percent, result_policy, is_published, is_active
		FROM tests
		WHERE id = $1
	`, testID)

	var t Test
	if err := row.Scan(&t.ID, &t.Title, &t.TimeLimitMinutes, &t.PassingScorePercent, &t.ResultPolicy, &t.Published, &t.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test: %w", err)
	}

	questions, err := p.loadQuestions(ctx, testID)
	if err != nil {
		return nil, err
	}
	t.Questions = questions
	return &t, nil
}

func (p *SQLProvider) ListPublished(ctx context.Context) ([]Test, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, time_limit_minutes, passing_score_percent, result_policy, is_published, is_active
		FROM tests
		WHERE is_published = TRUE AND is_active = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query published tests: %w", err)
	}
	defer rows.Close()

	out := make([]Test, 0)
	for rows.Next() {
		var t Test
		if err := rows.Scan(&t.ID, &t.Title, &t.TimeLimitMinutes, &t.PassingScorePercent, &t.ResultPolicy, &t.Published, &t.Active); err != nil {
			return nil, fmt.Errorf("scan test row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	return out, nil
}

func (p *SQLProvider) loadQuestions(ctx context.Context, testID int64) ([]Question, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT q.id, q.question_text, q.correct_option, q.points, o.option_key, o.option_text
		FROM questions q
		JOIN question_options o ON o.question_id = q.id
		WHERE q.test_id = $1
		ORDER BY q.seq_no, q.id, o.option_key
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	var cur *Question
	for rows.Next() {
		var (
			id            int64
			text          string
			correctOption string
			points        int
			optKey        string
			optText       string
		)
		if err := rows.Scan(&id, &text, &correctOption, &points, &optKey, &optText); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		if cur == nil || cur.ID != id {
			out = append(out, Question{ID: id, Text: text, CorrectOption: correctOption, Points: points})
			cur = &out[len(out)-1]
		}
		cur.Options = append(cur.Options, Option{Key: optKey, Text: optText})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}
