package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"admitest/internal/app/apiresp"
	"admitest/internal/auth"
	"admitest/internal/catalog"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	svc attemptService
}

type attemptService interface {
	StartAttempt(ctx context.Context, testID, applicantID int64) (*StartedAttempt, error)
	GetAttempt(ctx context.Context, attemptID string) (*AttemptView, error)
	SubmitAnswer(ctx context.Context, attemptID string, questionID int64, option string) error
	Finish(ctx context.Context, attemptID, reason string, clientTimeSpentSeconds int64) (*ResultView, error)
	GetResult(ctx context.Context, attemptID string) (*ResultView, error)
	GetResultByID(ctx context.Context, resultID string) (*Result, error)
	Owner(ctx context.Context, attemptID string) (int64, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type startAttemptRequest struct {
	TestID      int64 `json:"test_id"`
	ApplicantID int64 `json:"applicant_id"`
}

type submitAnswerRequest struct {
	QuestionID     int64  `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

type finishRequest struct {
	Reason           string `json:"reason"`
	TimeSpentSeconds int64  `json:"time_spent_seconds"`
}

func NewHandler(svc attemptService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if req.TestID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "test_id is required"})
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	if user.IsStaff() {
		if req.ApplicantID <= 0 {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "applicant_id is required for staff"})
			return
		}
	} else {
		if req.ApplicantID > 0 && req.ApplicantID != user.ID {
			writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
			return
		}
		req.ApplicantID = user.ID
	}

	started, err := h.svc.StartAttempt(r.Context(), req.TestID, req.ApplicantID)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrTestNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrTestNotAvailable):
			writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrNotEligible):
			writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrAlreadyInProgress):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: started})
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	attemptID, ok := attemptIDParam(w, r)
	if !ok {
		return
	}

	if err := h.authorizeAttemptAccess(r, user, attemptID); err != nil {
		writeAuthorizeError(w, r, err)
		return
	}

	view, err := h.svc.GetAttempt(r.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: view})
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	attemptID, ok := attemptIDParam(w, r)
	if !ok {
		return
	}

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if req.QuestionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "question_id is required"})
		return
	}

	if err := h.authorizeAttemptAccess(r, user, attemptID); err != nil {
		writeAuthorizeError(w, r, err)
		return
	}

	err := h.svc.SubmitAnswer(r.Context(), attemptID, req.QuestionID, req.SelectedOption)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidOption), errors.Is(err, ErrQuestionNotInTest):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrAttemptCompleted):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrDeadlineExceeded):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "saved"}})
}

func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	attemptID, ok := attemptIDParam(w, r)
	if !ok {
		return
	}

	var req finishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = finishRequest{}
	}

	if err := h.authorizeAttemptAccess(r, user, attemptID); err != nil {
		writeAuthorizeError(w, r, err)
		return
	}

	view, err := h.svc.Finish(r.Context(), attemptID, req.Reason, req.TimeSpentSeconds)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidReason):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: h.resultPayload(user, view.Result, view.ResultPolicy)})
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	attemptID, ok := attemptIDParam(w, r)
	if !ok {
		return
	}

	if err := h.authorizeAttemptAccess(r, user, attemptID); err != nil {
		writeAuthorizeError(w, r, err)
		return
	}

	view, err := h.svc.GetResult(r.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound), errors.Is(err, ErrResultNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: h.resultPayload(user, view.Result, view.ResultPolicy)})
}

func (h *Handler) ResultByID(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	resultID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(resultID); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid result id"})
		return
	}

	result, err := h.svc.GetResultByID(r.Context(), resultID)
	if err != nil {
		switch {
		case errors.Is(err, ErrResultNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	if !user.IsStaff() && result.ApplicantID != user.ID {
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		return
	}

	policy := ""
	if !user.IsStaff() {
		view, err := h.svc.GetResult(r.Context(), result.AttemptID)
		if err != nil {
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
			return
		}
		policy = view.ResultPolicy
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: h.resultPayload(user, result, policy)})
}

// resultPayload hides the per-question breakdown from candidates when the
// test defers review until results are released. Staff always see it.
func (h *Handler) resultPayload(user *auth.User, result *Result, policy string) *Result {
	if user.IsStaff() || policy == catalog.ResultPolicyImmediate || policy == "" {
		return result
	}
	redacted := *result
	redacted.Breakdown = nil
	return &redacted
}

func attemptIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	attemptID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(attemptID); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid attempt id"})
		return "", false
	}
	return attemptID, true
}

func writeAuthorizeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrAttemptForbidden):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}

func (h *Handler) authorizeAttemptAccess(r *http.Request, user *auth.User, attemptID string) error {
	if user.IsStaff() {
		return nil
	}

	ownerID, err := h.svc.Owner(r.Context(), attemptID)
	if err != nil {
		return err
	}
	if ownerID != user.ID {
		return ErrAttemptForbidden
	}
	return nil
}
