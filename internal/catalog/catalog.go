package catalog

import (
	"context"
	"errors"
)

var (
	ErrTestNotFound = errors.New("test not found")
)

// Result review policies carried on a test. The engine never assumes a
// default; seed data must set one explicitly.
const (
	ResultPolicyImmediate    = "immediate"
	ResultPolicyAfterRelease = "after_release"
)

// Option is one of the four answer choices of a question.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question is a single weighted multiple-choice question. CorrectOption is
// one of A-D and is never serialized to candidates (see Sanitized).
type Question struct {
	ID            int64    `json:"id"`
	Text          string   `json:"text"`
	Options       []Option `json:"options"`
	CorrectOption string   `json:"correct_option,omitempty"`
	Points        int      `json:"points"`
}

// Test is an immutable test definition as served by the catalog.
// TimeLimitMinutes == 0 means the test is untimed.
type Test struct {
	ID                  int64      `json:"id"`
	Title               string     `json:"title"`
	TimeLimitMinutes    int        `json:"time_limit_minutes"`
	PassingScorePercent float64    `json:"passing_score_percent"`
	ResultPolicy        string     `json:"result_policy"`
	Published           bool       `json:"published"`
	Active              bool       `json:"active"`
	Questions           []Question `json:"questions"`
}

// Provider supplies test definitions to the attempt engine. Implementations
// are read-only from the engine's perspective.
type Provider interface {
	GetTest(ctx context.Context, testID int64) (*Test, error)
	ListPublished(ctx context.Context) ([]Test, error)
}

// Available reports whether candidates may start attempts against the test.
func (t *Test) Available() bool {
	return t.Published && t.Active && len(t.Questions) > 0
}

// Question returns the frozen question with the given id, if present.
func (t *Test) Question(questionID int64) (*Question, bool) {
	for i := range t.Questions {
		if t.Questions[i].ID == questionID {
			return &t.Questions[i], true
		}
	}
	return nil, false
}

// Clone deep-copies the test so a frozen attempt snapshot cannot alias
// catalog-owned slices.
func (t *Test) Clone() *Test {
	cp := *t
	cp.Questions = make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		qc := q
		qc.Options = append([]Option(nil), q.Options...)
		cp.Questions[i] = qc
	}
	return &cp
}

// Sanitized strips answer keys before a test is served to candidates.
func (t *Test) Sanitized() *Test {
	cp := t.Clone()
	for i := range cp.Questions {
		cp.Questions[i].CorrectOption = ""
	}
	return cp
}
