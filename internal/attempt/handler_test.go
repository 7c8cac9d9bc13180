package attempt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"admitest/internal/auth"
	"admitest/internal/catalog"

	"github.com/go-chi/chi/v5"
)

const (
	testAttemptID = "7b0d1d3e-9d6b-4f1d-8a9a-3f2f6f1c0001"
	testResultID  = "7b0d1d3e-9d6b-4f1d-8a9a-3f2f6f1c0002"
)

type mockAttemptService struct {
	startAttemptFn  func(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error)
	getAttemptFn    func(ctx context.Context, attemptID string) (*AttemptView, error)
	submitAnswerFn  func(ctx context.Context, attemptID string, questionID int64, option string) error
	finishFn        func(ctx context.Context, attemptID, reason string, clientTimeSpentSeconds int64) (*ResultView, error)
	getResultFn     func(ctx context.Context, attemptID string) (*ResultView, error)
	getResultByIDFn func(ctx context.Context, resultID string) (*Result, error)
	ownerFn         func(ctx context.Context, attemptID string) (int64, error)
}

func (m *mockAttemptService) StartAttempt(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error) {
	if m.startAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.startAttemptFn(ctx, testID, applicantID)
}

func (m *mockAttemptService) GetAttempt(ctx context.Context, attemptID string) (*AttemptView, error) {
	if m.getAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getAttemptFn(ctx, attemptID)
}

func (m *mockAttemptService) SubmitAnswer(ctx context.Context, attemptID string, questionID int64, option string) error {
	if m.submitAnswerFn == nil {
		return errors.New("not implemented")
	}
	return m.submitAnswerFn(ctx, attemptID, questionID, option)
}

func (m *mockAttemptService) Finish(ctx context.Context, attemptID, reason string, clientTimeSpentSeconds int64) (*ResultView, error) {
	if m.finishFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.finishFn(ctx, attemptID, reason, clientTimeSpentSeconds)
}

func (m *mockAttemptService) GetResult(ctx context.Context, attemptID string) (*ResultView, error) {
	if m.getResultFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getResultFn(ctx, attemptID)
}

func (m *mockAttemptService) GetResultByID(ctx context.Context, resultID string) (*Result, error) {
	if m.getResultByIDFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getResultByIDFn(ctx, resultID)
}

func (m *mockAttemptService) Owner(ctx context.Context, attemptID string) (int64, error) {
	if m.ownerFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.ownerFn(ctx, attemptID)
}

func newRouterWith(svc attemptService) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Post("/attempts/start", h.Start)
	r.Get("/attempts/{id}", h.GetAttempt)
	r.Put("/attempts/{id}/answers", h.SubmitAnswer)
	r.Post("/attempts/{id}/finish", h.Finish)
	r.Get("/attempts/{id}/result", h.Result)
	r.Get("/results/{id}", h.ResultByID)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, target string, body interface{}, user *auth.User) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if user != nil {
		req = req.WithContext(auth.ContextWithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func candidate(id int64) *auth.User {
	return &auth.User{ID: id, Role: auth.RoleApplicant}
}

func staff() *auth.User {
	return &auth.User{ID: 1, Role: auth.RoleCurator}
}

func sampleResult() *Result {
	sel := "A"
	return &Result{
		ID:               testResultID,
		AttemptID:        testAttemptID,
		TestID:           10,
		ApplicantID:      77,
		TotalQuestions:   4,
		AnsweredCount:    3,
		CorrectAnswers:   2,
		TotalScore:       3,
		MaxPossibleScore: 5,
		ScorePercentage:  60,
		IsPassed:         true,
		FinishReason:     FinishManual,
		TimeSpentSeconds: 600,
		CreatedAt:        time.Date(2026, 3, 10, 9, 10, 0, 0, time.UTC),
		Breakdown: []QuestionScore{
			{QuestionID: 1, SelectedOption: &sel, CorrectOption: "A", IsCorrect: true, PointsAwarded: 1, MaxPoints: 1},
		},
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestHandlerStart(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		user       *auth.User
		startFn    func(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error)
		wantStatus int
	}{
		{
			name: "candidate starts own attempt",
			body: map[string]interface{}{"test_id": 10},
			user: candidate(77),
			startFn: func(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error) {
				if testID != 10 || applicantID != 77 {
					t.Fatalf("unexpected args: test=%d applicant=%d", testID, applicantID)
				}
				return &StartedAttempt{AttemptID: testAttemptID, TestID: 10}, nil
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "candidate cannot start for someone else",
			body:       map[string]interface{}{"test_id": 10, "applicant_id": 78},
			user:       candidate(77),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "staff must name an applicant",
			body:       map[string]interface{}{"test_id": 10},
			user:       staff(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing test id",
			body:       map[string]interface{}{},
			user:       candidate(77),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unauthenticated",
			body:       map[string]interface{}{"test_id": 10},
			user:       nil,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown test",
			body: map[string]interface{}{"test_id": 10},
			user: candidate(77),
			startFn: func(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error) {
				return nil, catalog.ErrTestNotFound
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "not open",
			body: map[string]interface{}{"test_id": 10},
			user: candidate(77),
			startFn: func(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error) {
				return nil, ErrTestNotAvailable
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "not eligible",
			body: map[string]interface{}{"test_id": 10},
			user: candidate(77),
			startFn: func(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error) {
				return nil, ErrNotEligible
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "already in progress",
			body: map[string]interface{}{"test_id": 10},
			user: candidate(77),
			startFn: func(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error) {
				return nil, ErrAlreadyInProgress
			},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouterWith(&mockAttemptService{startAttemptFn: tc.startFn})
			rec := doRequest(t, router, http.MethodPost, "/attempts/start", tc.body, tc.user)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandlerGetAttemptOwnership(t *testing.T) {
	svc := &mockAttemptService{
		ownerFn: func(ctx context.Context, attemptID string) (int64, error) { return 77, nil },
		getAttemptFn: func(ctx context.Context, attemptID string) (*AttemptView, error) {
			return &AttemptView{ID: attemptID, TestID: 10, ApplicantID: 77, Status: StatusInProgress}, nil
		},
	}
	router := newRouterWith(svc)

	tests := []struct {
		name       string
		user       *auth.User
		wantStatus int
	}{
		{name: "owner reads own attempt", user: candidate(77), wantStatus: http.StatusOK},
		{name: "other candidate forbidden", user: candidate(78), wantStatus: http.StatusForbidden},
		{name: "staff allowed", user: staff(), wantStatus: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodGet, "/attempts/"+testAttemptID, nil, tc.user)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandlerGetAttemptInvalidID(t *testing.T) {
	router := newRouterWith(&mockAttemptService{})
	rec := doRequest(t, router, http.MethodGet, "/attempts/not-a-uuid", nil, candidate(77))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestHandlerSubmitAnswer(t *testing.T) {
	owner := func(ctx context.Context, attemptID string) (int64, error) { return 77, nil }

	tests := []struct {
		name       string
		body       interface{}
		submitErr  error
		wantStatus int
	}{
		{name: "saved", body: map[string]interface{}{"question_id": 1, "selected_option": "A"}, wantStatus: http.StatusOK},
		{name: "invalid option", body: map[string]interface{}{"question_id": 1, "selected_option": "E"}, submitErr: ErrInvalidOption, wantStatus: http.StatusBadRequest},
		{name: "question not in test", body: map[string]interface{}{"question_id": 99, "selected_option": "A"}, submitErr: ErrQuestionNotInTest, wantStatus: http.StatusBadRequest},
		{name: "attempt completed", body: map[string]interface{}{"question_id": 1, "selected_option": "A"}, submitErr: ErrAttemptCompleted, wantStatus: http.StatusConflict},
		{name: "deadline exceeded", body: map[string]interface{}{"question_id": 1, "selected_option": "A"}, submitErr: ErrDeadlineExceeded, wantStatus: http.StatusConflict},
		{name: "missing question id", body: map[string]interface{}{"selected_option": "A"}, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockAttemptService{
				ownerFn: owner,
				submitAnswerFn: func(ctx context.Context, attemptID string, questionID int64, option string) error {
					return tc.submitErr
				},
			}
			router := newRouterWith(svc)
			rec := doRequest(t, router, http.MethodPut, "/attempts/"+testAttemptID+"/answers", tc.body, candidate(77))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandlerSubmitAnswerDeadlineMessage(t *testing.T) {
	svc := &mockAttemptService{
		ownerFn: func(ctx context.Context, attemptID string) (int64, error) { return 77, nil },
		submitAnswerFn: func(ctx context.Context, attemptID string, questionID int64, option string) error {
			return ErrDeadlineExceeded
		},
	}
	router := newRouterWith(svc)
	rec := doRequest(t, router, http.MethodPut, "/attempts/"+testAttemptID+"/answers",
		map[string]interface{}{"question_id": 1, "selected_option": "A"}, candidate(77))

	out := decodeEnvelope(t, rec)
	errObj, _ := out["error"].(map[string]interface{})
	if errObj == nil || errObj["message"] != ErrDeadlineExceeded.Error() {
		t.Fatalf("expected deadline message in error payload, got %s", rec.Body.String())
	}
}

func TestHandlerFinish(t *testing.T) {
	svc := &mockAttemptService{
		ownerFn: func(ctx context.Context, attemptID string) (int64, error) { return 77, nil },
		finishFn: func(ctx context.Context, attemptID, reason string, clientTimeSpentSeconds int64) (*ResultView, error) {
			if reason != FinishManual || clientTimeSpentSeconds != 540 {
				t.Fatalf("unexpected finish args: reason=%s time=%d", reason, clientTimeSpentSeconds)
			}
			return &ResultView{Result: sampleResult(), ResultPolicy: catalog.ResultPolicyImmediate}, nil
		},
	}
	router := newRouterWith(svc)

	rec := doRequest(t, router, http.MethodPost, "/attempts/"+testAttemptID+"/finish",
		map[string]interface{}{"reason": "manual", "time_spent_seconds": 540}, candidate(77))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	out := decodeEnvelope(t, rec)
	data, _ := out["data"].(map[string]interface{})
	if data == nil || data["is_passed"] != true {
		t.Fatalf("expected passing result in payload, got %s", rec.Body.String())
	}
}

func TestHandlerFinishInvalidReason(t *testing.T) {
	svc := &mockAttemptService{
		ownerFn: func(ctx context.Context, attemptID string) (int64, error) { return 77, nil },
		finishFn: func(ctx context.Context, attemptID, reason string, clientTimeSpentSeconds int64) (*ResultView, error) {
			return nil, ErrInvalidReason
		},
	}
	router := newRouterWith(svc)
	rec := doRequest(t, router, http.MethodPost, "/attempts/"+testAttemptID+"/finish",
		map[string]interface{}{"reason": "gave_up"}, candidate(77))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerResultPolicyRedaction(t *testing.T) {
	tests := []struct {
		name          string
		user          *auth.User
		policy        string
		wantBreakdown bool
	}{
		{name: "candidate immediate sees breakdown", user: candidate(77), policy: catalog.ResultPolicyImmediate, wantBreakdown: true},
		{name: "candidate after_release redacted", user: candidate(77), policy: catalog.ResultPolicyAfterRelease, wantBreakdown: false},
		{name: "staff always sees breakdown", user: staff(), policy: catalog.ResultPolicyAfterRelease, wantBreakdown: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockAttemptService{
				ownerFn: func(ctx context.Context, attemptID string) (int64, error) { return 77, nil },
				getResultFn: func(ctx context.Context, attemptID string) (*ResultView, error) {
					return &ResultView{Result: sampleResult(), ResultPolicy: tc.policy}, nil
				},
			}
			router := newRouterWith(svc)
			rec := doRequest(t, router, http.MethodGet, "/attempts/"+testAttemptID+"/result", nil, tc.user)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
			}

			out := decodeEnvelope(t, rec)
			data, _ := out["data"].(map[string]interface{})
			if data == nil {
				t.Fatalf("missing data payload: %s", rec.Body.String())
			}
			_, hasBreakdown := data["per_question_breakdown"]
			if hasBreakdown != tc.wantBreakdown {
				t.Fatalf("expected breakdown=%v, got=%v (%s)", tc.wantBreakdown, hasBreakdown, rec.Body.String())
			}
		})
	}
}

func TestHandlerResultNotReady(t *testing.T) {
	svc := &mockAttemptService{
		ownerFn: func(ctx context.Context, attemptID string) (int64, error) { return 77, nil },
		getResultFn: func(ctx context.Context, attemptID string) (*ResultView, error) {
			return nil, ErrResultNotFound
		},
	}
	router := newRouterWith(svc)
	rec := doRequest(t, router, http.MethodGet, "/attempts/"+testAttemptID+"/result", nil, candidate(77))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlerResultByID(t *testing.T) {
	svc := &mockAttemptService{
		getResultByIDFn: func(ctx context.Context, resultID string) (*Result, error) {
			if resultID != testResultID {
				return nil, ErrResultNotFound
			}
			return sampleResult(), nil
		},
		getResultFn: func(ctx context.Context, attemptID string) (*ResultView, error) {
			return &ResultView{Result: sampleResult(), ResultPolicy: catalog.ResultPolicyImmediate}, nil
		},
	}
	router := newRouterWith(svc)

	tests := []struct {
		name       string
		target     string
		user       *auth.User
		wantStatus int
	}{
		{name: "owner", target: "/results/" + testResultID, user: candidate(77), wantStatus: http.StatusOK},
		{name: "other candidate forbidden", target: "/results/" + testResultID, user: candidate(78), wantStatus: http.StatusForbidden},
		{name: "staff", target: "/results/" + testResultID, user: staff(), wantStatus: http.StatusOK},
		{name: "malformed id", target: "/results/nope", user: candidate(77), wantStatus: http.StatusBadRequest},
		{name: "unknown id", target: "/results/7b0d1d3e-9d6b-4f1d-8a9a-3f2f6f1c9999", user: candidate(77), wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodGet, tc.target, nil, tc.user)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}
