package attempt

import (
	"context"
	"fmt"
	"time"

	"admitest/internal/catalog"
	"admitest/internal/eligibility"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service is the session lifecycle controller. It orchestrates the attempt
// state machine over an injected store, catalog provider and eligibility
// gate, and re-derives the authoritative deadline inside every mutating call.
type Service struct {
	store   Store
	catalog catalog.Provider
	gate    eligibility.Gate
	now     func() time.Time
}

func NewService(store Store, provider catalog.Provider, gate eligibility.Gate) *Service {
	return &Service{
		store:   store,
		catalog: provider,
		gate:    gate,
		now:     time.Now,
	}
}

// StartedAttempt is the response to a successful StartAttempt.
type StartedAttempt struct {
	AttemptID        string    `json:"attempt_id"`
	TestID           int64     `json:"test_id"`
	StartedAt        time.Time `json:"started_at"`
	RemainingSeconds *int64    `json:"remaining_seconds,omitempty"`
}

// AttemptView is the resume-after-reload projection of an attempt. The
// remaining-seconds field is a disposable countdown hint, never authority.
type AttemptView struct {
	ID               string           `json:"id"`
	TestID           int64            `json:"test_id"`
	ApplicantID      int64            `json:"applicant_id"`
	Status           string           `json:"status"`
	FinishReason     string           `json:"finish_reason,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	Answers          map[int64]string `json:"answers"`
	RemainingSeconds *int64           `json:"remaining_seconds,omitempty"`
}

// ResultView pairs a result with the review policy frozen into the attempt,
// so the transport layer can decide breakdown visibility for candidates.
type ResultView struct {
	Result       *Result
	ResultPolicy string
}

// StartAttempt freezes the test definition and atomically creates the
// attempt. At most one attempt per (test, applicant) pair may be in progress.
func (s *Service) StartAttempt(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error) {
	test, err := s.catalog.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if !test.Available() {
		return nil, ErrTestNotAvailable
	}

	eligible, err := s.gate.IsEligible(ctx, applicantID, testID)
	if err != nil {
		return nil, fmt.Errorf("eligibility check: %w", err)
	}
	if !eligible {
		return nil, ErrNotEligible
	}

	now := s.now()
	a := &Attempt{
		ID:          uuid.NewString(),
		TestID:      testID,
		ApplicantID: applicantID,
		Status:      StatusInProgress,
		StartedAt:   now,
		Snapshot:    *test.Clone(),
		Answers:     make(map[int64]string),
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}

	log.Info().
		Str("attempt_id", a.ID).
		Int64("test_id", testID).
		Int64("applicant_id", applicantID).
		Int("time_limit_minutes", test.TimeLimitMinutes).
		Msg("attempt started")

	return &StartedAttempt{
		AttemptID:        a.ID,
		TestID:           testID,
		StartedAt:        now,
		RemainingSeconds: remainingPtr(now, test.TimeLimitMinutes, now),
	}, nil
}

// GetAttempt returns the attempt for resume. An in-progress attempt whose
// deadline has passed is finalized here, so reads never surface a stale
// in-progress state.
func (s *Service) GetAttempt(ctx context.Context, attemptID string) (*AttemptView, error) {
	a, err := s.store.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if a.Status == StatusInProgress && Expired(a.StartedAt, a.Snapshot.TimeLimitMinutes, now) {
		if _, err := s.finalize(ctx, attemptID, FinishTimeUp, 0, now); err != nil {
			return nil, err
		}
		a, err = s.store.Get(ctx, attemptID)
		if err != nil {
			return nil, err
		}
	}

	view := &AttemptView{
		ID:           a.ID,
		TestID:       a.TestID,
		ApplicantID:  a.ApplicantID,
		Status:       a.Status,
		FinishReason: a.FinishReason,
		StartedAt:    a.StartedAt,
		Answers:      a.Answers,
	}
	if a.Status == StatusInProgress {
		view.RemainingSeconds = remainingPtr(a.StartedAt, a.Snapshot.TimeLimitMinutes, now)
	}
	return view, nil
}

// Owner returns the applicant that owns the attempt.
func (s *Service) Owner(ctx context.Context, attemptID string) (int64, error) {
	a, err := s.store.Get(ctx, attemptID)
	if err != nil {
		return 0, err
	}
	return a.ApplicantID, nil
}

// SubmitAnswer upserts one selection into the answer ledger. Resubmitting the
// same option is a no-op; a different option overwrites. A submission after
// the deadline finalizes the attempt with TIME_UP instead of accepting the
// late answer.
func (s *Service) SubmitAnswer(ctx context.Context, attemptID string, questionID int64, option string) error {
	if !ValidOption(option) {
		return ErrInvalidOption
	}

	a, err := s.store.Get(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.Status != StatusInProgress {
		return ErrAttemptCompleted
	}
	if _, ok := a.Snapshot.Question(questionID); !ok {
		return ErrQuestionNotInTest
	}

	now := s.now()
	if Expired(a.StartedAt, a.Snapshot.TimeLimitMinutes, now) {
		if _, err := s.finalize(ctx, attemptID, FinishTimeUp, 0, now); err != nil {
			return err
		}
		return ErrDeadlineExceeded
	}

	return s.store.UpsertAnswer(ctx, attemptID, questionID, option)
}

// Finish completes the attempt and returns its result. Safe to call more
// than once: a CAS inside the store picks exactly one winner to score and
// persist; every other caller receives the canonical persisted result.
func (s *Service) Finish(ctx context.Context, attemptID, reason string, clientTimeSpentSeconds int64) (*ResultView, error) {
	switch reason {
	case FinishManual, FinishTimeUp:
	case "":
		reason = FinishManual
	default:
		return nil, ErrInvalidReason
	}

	a, err := s.store.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	r, err := s.finalize(ctx, attemptID, reason, clientTimeSpentSeconds, s.now())
	if err != nil {
		return nil, err
	}
	return &ResultView{Result: r, ResultPolicy: a.Snapshot.ResultPolicy}, nil
}

// GetResult returns the result for a completed attempt. An expired
// in-progress attempt is finalized on the way, so every overdue attempt
// eventually produces a result from whatever answers exist.
func (s *Service) GetResult(ctx context.Context, attemptID string) (*ResultView, error) {
	a, err := s.store.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	if a.Status == StatusInProgress {
		now := s.now()
		if !Expired(a.StartedAt, a.Snapshot.TimeLimitMinutes, now) {
			return nil, ErrResultNotFound
		}
		if _, err := s.finalize(ctx, attemptID, FinishTimeUp, 0, now); err != nil {
			return nil, err
		}
	}

	r, err := s.store.GetResultByAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return &ResultView{Result: r, ResultPolicy: a.Snapshot.ResultPolicy}, nil
}

// GetResultByID looks a result up by its own id.
func (s *Service) GetResultByID(ctx context.Context, resultID string) (*Result, error) {
	return s.store.GetResult(ctx, resultID)
}

func (s *Service) finalize(ctx context.Context, attemptID, reason string, clientTimeSpentSeconds int64, now time.Time) (*Result, error) {
	result, won, err := s.store.Finalize(ctx, attemptID, func(a *Attempt) (*Result, error) {
		return s.buildResult(a, reason, clientTimeSpentSeconds, now), nil
	})
	if err != nil {
		return nil, err
	}
	if won {
		log.Info().
			Str("attempt_id", attemptID).
			Str("finish_reason", result.FinishReason).
			Float64("score_percentage", result.ScorePercentage).
			Bool("is_passed", result.IsPassed).
			Msg("attempt finished")
	}
	return result, nil
}

// buildResult computes the immutable result record for the CAS winner. The
// deadline is re-derived here: a finish that arrives late is forced to
// TIME_UP and its time spent clamped to the limit, whatever the caller said.
func (s *Service) buildResult(a *Attempt, reason string, clientTimeSpentSeconds int64, now time.Time) *Result {
	limit := a.Snapshot.TimeLimitMinutes
	timeSpent := ElapsedSeconds(a.StartedAt, limit, now)

	if Expired(a.StartedAt, limit, now) {
		reason = FinishTimeUp
		timeSpent = int64(limit) * 60
	} else if clientTimeSpentSeconds > 0 && clientTimeSpentSeconds <= timeSpent {
		// Client-reported active time is accepted only when it does not
		// exceed the server-derived elapsed time.
		timeSpent = clientTimeSpentSeconds
	}

	card := Score(a.Snapshot.Questions, a.Answers, a.Snapshot.PassingScorePercent)
	return &Result{
		ID:               uuid.NewString(),
		AttemptID:        a.ID,
		TestID:           a.TestID,
		ApplicantID:      a.ApplicantID,
		TotalQuestions:   card.TotalQuestions,
		AnsweredCount:    card.AnsweredCount,
		CorrectAnswers:   card.CorrectAnswers,
		TotalScore:       card.TotalScore,
		MaxPossibleScore: card.MaxPossibleScore,
		ScorePercentage:  card.ScorePercentage,
		IsPassed:         card.IsPassed,
		FinishReason:     reason,
		TimeSpentSeconds: timeSpent,
		CreatedAt:        now,
		Breakdown:        card.Breakdown,
	}
}

func remainingPtr(startedAt time.Time, timeLimitMinutes int, now time.Time) *int64 {
	remaining, limited := RemainingSeconds(startedAt, timeLimitMinutes, now)
	if !limited {
		return nil
	}
	return &remaining
}
