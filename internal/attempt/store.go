package attempt

import (
	"context"
	"sync"
)

// FinalizeFunc computes the Result for an in-progress attempt. The store
// invokes it exactly once, at the serialization point, with the attempt's
// frozen snapshot and final answer ledger loaded.
type FinalizeFunc func(a *Attempt) (*Result, error)

// Store persists attempts and the results they produce. Implementations must
// serialize operations on a single attempt and uphold the one-in-progress-
// attempt-per-(test, applicant) invariant on Create.
type Store interface {
	// Create inserts a new in-progress attempt. Returns ErrAlreadyInProgress
	// when the applicant already has an in-progress attempt for the test.
	Create(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, attemptID string) (*Attempt, error)
	// UpsertAnswer records a selection, last write wins. Fails closed with
	// ErrAttemptCompleted when the attempt is no longer in progress.
	UpsertAnswer(ctx context.Context, attemptID string, questionID int64, option string) error
	// Finalize transitions the attempt to completed exactly once. The first
	// caller wins the CAS, has finalize invoked, and gets (result, true).
	// Later callers get the already-persisted result and false.
	Finalize(ctx context.Context, attemptID string, finalize FinalizeFunc) (*Result, bool, error)
	GetResultByAttempt(ctx context.Context, attemptID string) (*Result, error)
	GetResult(ctx context.Context, resultID string) (*Result, error)
}

type pairKey struct {
	TestID      int64
	ApplicantID int64
}

// MemoryStore keeps attempts in process memory behind a single mutex, which
// also serves as the per-attempt serialization point. Used by tests and by
// ephemeral single-process deployments.
type MemoryStore struct {
	mu         sync.Mutex
	attempts   map[string]*Attempt
	inProgress map[pairKey]string
	byAttempt  map[string]*Result
	results    map[string]*Result
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts:   make(map[string]*Attempt),
		inProgress: make(map[pairKey]string),
		byAttempt:  make(map[string]*Result),
		results:    make(map[string]*Result),
	}
}

func (s *MemoryStore) Create(ctx context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{TestID: a.TestID, ApplicantID: a.ApplicantID}
	if _, busy := s.inProgress[key]; busy {
		return ErrAlreadyInProgress
	}
	s.attempts[a.ID] = cloneAttempt(a)
	s.inProgress[key] = a.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, attemptID string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (s *MemoryStore) UpsertAnswer(ctx context.Context, attemptID string, questionID int64, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return ErrAttemptCompleted
	}
	a.Answers[questionID] = option
	return nil
}

func (s *MemoryStore) Finalize(ctx context.Context, attemptID string, finalize FinalizeFunc) (*Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, false, ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		r, ok := s.byAttempt[attemptID]
		if !ok {
			return nil, false, ErrResultNotFound
		}
		return cloneResult(r), false, nil
	}

	result, err := finalize(cloneAttempt(a))
	if err != nil {
		return nil, false, err
	}

	a.Status = StatusCompleted
	a.FinishReason = result.FinishReason
	finishedAt := result.CreatedAt
	a.FinishedAt = &finishedAt
	delete(s.inProgress, pairKey{TestID: a.TestID, ApplicantID: a.ApplicantID})

	stored := cloneResult(result)
	s.byAttempt[attemptID] = stored
	s.results[result.ID] = stored
	return cloneResult(result), true, nil
}

func (s *MemoryStore) GetResultByAttempt(ctx context.Context, attemptID string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byAttempt[attemptID]
	if !ok {
		return nil, ErrResultNotFound
	}
	return cloneResult(r), nil
}

func (s *MemoryStore) GetResult(ctx context.Context, resultID string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[resultID]
	if !ok {
		return nil, ErrResultNotFound
	}
	return cloneResult(r), nil
}

func cloneAttempt(a *Attempt) *Attempt {
	cp := *a
	cp.Snapshot = *a.Snapshot.Clone()
	cp.Answers = make(map[int64]string, len(a.Answers))
	for k, v := range a.Answers {
		cp.Answers[k] = v
	}
	if a.FinishedAt != nil {
		t := *a.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

func cloneResult(r *Result) *Result {
	cp := *r
	cp.Breakdown = make([]QuestionScore, len(r.Breakdown))
	for i, b := range r.Breakdown {
		bc := b
		if b.SelectedOption != nil {
			sel := *b.SelectedOption
			bc.SelectedOption = &sel
		}
		cp.Breakdown[i] = bc
	}
	return &cp
}
