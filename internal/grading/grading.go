// Package grading scores learner answers against question definitions.
//
// Everything here is a pure function of its inputs: grading the same answer
// set twice yields identical results.
package grading

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// Feedback strings attached to graded answers.
const (
	FeedbackCorrect       = "correct"
	FeedbackPendingReview = "pending manual review"
	FeedbackNoAnswer      = "no answer provided"
	FeedbackInvalidType   = "invalid question type"
)

// Result is the outcome of grading one answer.
type Result struct {
	IsCorrect *bool
	Score     int
	Feedback  string
}

// Summary aggregates the graded answers of one submission.
type Summary struct {
	TotalScore int
	Percentage float64
	Passed     bool
}

// GradeAnswer scores a single raw answer. A nil or blank answer counts as
// absent. An unknown question type degrades to a zero score for this answer
// only.
func GradeAnswer(q models.Question, answer *string) Result {
	if !q.Type.Valid() {
		return Result{IsCorrect: boolPtr(false), Feedback: FeedbackInvalidType}
	}

	if answer == nil || strings.TrimSpace(*answer) == "" {
		return Result{IsCorrect: boolPtr(false), Feedback: FeedbackNoAnswer}
	}

	switch q.Type {
	case models.QuestionMultipleChoice, models.QuestionSingleChoice, models.QuestionTrueFalse:
		if matches(q.Type, *answer, q.CorrectAnswer) {
			return Result{IsCorrect: boolPtr(true), Score: q.Points, Feedback: FeedbackCorrect}
		}
		return Result{
			IsCorrect: boolPtr(false),
			Feedback:  fmt.Sprintf("incorrect, the correct answer is %s", q.CorrectAnswer),
		}
	case models.QuestionShortAnswer, models.QuestionEssay, models.QuestionFileUpload:
		return Result{Feedback: FeedbackPendingReview}
	default:
		return Result{IsCorrect: boolPtr(false), Feedback: FeedbackInvalidType}
	}
}

// GradeAll grades answers positionally against questions. Answers beyond the
// question list are ignored; missing trailing answers are graded as absent.
func GradeAll(questions []models.Question, answers []*string) []models.Answer {
	graded := make([]models.Answer, 0, len(questions))
	for idx, question := range questions {
		var raw *string
		if idx < len(answers) {
			raw = answers[idx]
		}
		result := GradeAnswer(question, raw)
		graded = append(graded, models.Answer{
			QuestionIndex: idx,
			Value:         raw,
			IsCorrect:     result.IsCorrect,
			Score:         result.Score,
			Feedback:      result.Feedback,
		})
	}
	return graded
}

// Aggregate totals answer scores against the snapshotted maximum. Unanswered
// questions contribute zero but stay in the denominator.
func Aggregate(answers []models.Answer, maxPossibleScore int, passingScorePercent float64) Summary {
	total := 0
	for _, answer := range answers {
		total += answer.Score
	}

	exact := 0.0
	if maxPossibleScore > 0 {
		exact = float64(total) / float64(maxPossibleScore) * 100
		exact = math.Max(0, math.Min(100, exact))
	}

	// Pass/fail uses the unrounded value; only the reported percentage is rounded.
	return Summary{
		TotalScore: total,
		Percentage: math.Round(exact*100) / 100,
		Passed:     exact >= passingScorePercent,
	}
}

// PendingReview clears correctness and score on every answer so a human
// grader can assign them. Used when an assessment is not auto-graded.
func PendingReview(answers []models.Answer) []models.Answer {
	pending := make([]models.Answer, len(answers))
	for i, answer := range answers {
		answer.IsCorrect = nil
		answer.Score = 0
		pending[i] = answer
	}
	return pending
}

func matches(kind models.QuestionType, answer, correct string) bool {
	switch kind {
	case models.QuestionTrueFalse:
		return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(correct))
	case models.QuestionMultipleChoice:
		return equalSelections(SplitSelections(answer), SplitSelections(correct))
	default:
		return strings.TrimSpace(answer) == strings.TrimSpace(correct)
	}
}

// SplitSelections parses a comma separated multiple choice answer into its
// distinct, trimmed selections.
func SplitSelections(value string) []string {
	parts := strings.Split(value, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

func equalSelections(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func boolPtr(v bool) *bool {
	return &v
}
