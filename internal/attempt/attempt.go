package attempt

import (
	"errors"
	"time"

	"admitest/internal/catalog"
)

var (
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrResultNotFound    = errors.New("result not found")
	ErrAlreadyInProgress = errors.New("you already have an attempt in progress for this test")
	ErrTestNotAvailable  = errors.New("this test is not currently open")
	ErrNotEligible       = errors.New("applicant is not eligible for this test")
	ErrAttemptCompleted  = errors.New("attempt is already completed")
	ErrDeadlineExceeded  = errors.New("time is up for this attempt")
	ErrInvalidOption     = errors.New("selected option must be one of A, B, C, D")
	ErrInvalidReason     = errors.New("finish reason must be manual or time_up")
	ErrQuestionNotInTest = errors.New("question is not part of this test")
	ErrAttemptForbidden  = errors.New("attempt forbidden")
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

const (
	FinishManual = "manual"
	FinishTimeUp = "time_up"
)

// Attempt is one applicant's single pass through one test. The Snapshot is
// the test definition frozen at start; later catalog edits never reach it.
type Attempt struct {
	ID           string           `json:"id"`
	TestID       int64            `json:"test_id"`
	ApplicantID  int64            `json:"applicant_id"`
	Status       string           `json:"status"`
	FinishReason string           `json:"finish_reason,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	Snapshot     catalog.Test     `json:"-"`
	Answers      map[int64]string `json:"answers"`
}

// Result is the immutable scored outcome of a completed attempt.
type Result struct {
	ID               string          `json:"id"`
	AttemptID        string          `json:"attempt_id"`
	TestID           int64           `json:"test_id"`
	ApplicantID      int64           `json:"applicant_id"`
	TotalQuestions   int             `json:"total_questions"`
	AnsweredCount    int             `json:"answered_questions"`
	CorrectAnswers   int             `json:"correct_answers"`
	TotalScore       int             `json:"total_score"`
	MaxPossibleScore int             `json:"max_possible_score"`
	ScorePercentage  float64         `json:"score_percentage"`
	IsPassed         bool            `json:"is_passed"`
	FinishReason     string          `json:"finish_reason"`
	TimeSpentSeconds int64           `json:"time_spent_seconds"`
	CreatedAt        time.Time       `json:"created_at"`
	Breakdown        []QuestionScore `json:"per_question_breakdown,omitempty"`
}

// QuestionScore is one audit entry per frozen question.
type QuestionScore struct {
	QuestionID     int64   `json:"question_id"`
	SelectedOption *string `json:"selected_option"`
	CorrectOption  string  `json:"correct_option"`
	IsCorrect      bool    `json:"is_correct"`
	PointsAwarded  int     `json:"points_awarded"`
	MaxPoints      int     `json:"max_points"`
}

// ValidOption reports whether the submitted option letter is one of A-D.
// Comparison elsewhere is exact: no trimming, no case folding.
func ValidOption(option string) bool {
	switch option {
	case "A", "B", "C", "D":
		return true
	}
	return false
}
