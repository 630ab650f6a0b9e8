// internal/question/question.go

// Package question defines the question generation and grading boundary the
// match engine depends on, plus the chat-completions client and an offline
// static implementation.
package question

import (
	"context"
	"strings"

	"github.com/clashcourse/clashcourse/internal/models"
)

// Service produces a question from course fragments and grades free-form
// submissions against a generated question. Both calls are latency-bound and
// must respect ctx; the engine invokes them outside its per-match lock.
type Service interface {
	GenerateQuestion(ctx context.Context, fragments []models.Fragment, allowed []models.QuestionType, difficulty models.Difficulty) (*models.Question, error)
	GradeAnswer(ctx context.Context, fragments []models.Fragment, q *models.Question, submitted string) (*models.Verdict, error)
}

// GradedLocally reports whether q is graded without calling the service.
// Multiple choice compares option letters and needs no semantic judgment.
func GradedLocally(q *models.Question) bool {
	return q.Type == models.QuestionMCQ
}

// GradeMCQ grades a multiple-choice submission by comparing the first
// letter of the submission with the stored correct answer, ignoring case.
func GradeMCQ(q *models.Question, submitted string) *models.Verdict {
	sub := firstLetter(submitted)
	want := firstLetter(q.CorrectAnswer)
	correct := sub != "" && sub == want
	explanation := q.Solution
	if !correct {
		explanation = "Incorrect. " + q.Solution
	}
	return &models.Verdict{
		Correct:     correct,
		Confidence:  1.0,
		Explanation: explanation,
		Citations:   q.Sources,
	}
}

func firstLetter(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1])
}
