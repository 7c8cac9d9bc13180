package attempt

import (
	"math"

	"admitest/internal/catalog"
)

// Scorecard is the output of the scoring engine, before it is attached to a
// persisted Result.
type Scorecard struct {
	TotalQuestions   int
	AnsweredCount    int
	CorrectAnswers   int
	TotalScore       int
	MaxPossibleScore int
	ScorePercentage  float64
	IsPassed         bool
	Breakdown        []QuestionScore
}

// Score grades the final answer ledger against the frozen questions. It is
// pure and deterministic: identical inputs always yield identical output.
//
// MaxPossibleScore sums the points of every frozen question regardless of how
// many were answered. A wrong or missing answer contributes zero and is never
// an error. The caller guarantees at least one question (StartAttempt refuses
// zero-question tests).
func Score(questions []catalog.Question, answers map[int64]string, passingScorePercent float64) Scorecard {
	card := Scorecard{
		TotalQuestions: len(questions),
		Breakdown:      make([]QuestionScore, 0, len(questions)),
	}

	for _, q := range questions {
		card.MaxPossibleScore += q.Points

		entry := QuestionScore{
			QuestionID:    q.ID,
			CorrectOption: q.CorrectOption,
			MaxPoints:     q.Points,
		}

		selected, answered := answers[q.ID]
		if answered {
			card.AnsweredCount++
			sel := selected
			entry.SelectedOption = &sel
			if selected == q.CorrectOption {
				entry.IsCorrect = true
				entry.PointsAwarded = q.Points
				card.CorrectAnswers++
				card.TotalScore += q.Points
			}
		}
		card.Breakdown = append(card.Breakdown, entry)
	}

	if card.MaxPossibleScore > 0 {
		card.ScorePercentage = round2(float64(card.TotalScore) / float64(card.MaxPossibleScore) * 100)
	}
	card.IsPassed = card.ScorePercentage >= passingScorePercent
	return card
}

// round2 rounds half-up to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
