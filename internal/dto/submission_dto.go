package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// AnswerInput is one learner response. A null value marks the question as skipped.
type AnswerInput struct {
	Value            *string `json:"value" validate:"omitempty,max=20000"`
	TimeSpentSeconds int     `json:"time_spent_seconds" validate:"gte=0"`
}

// SubmitAttemptRequest carries answers in question order.
type SubmitAttemptRequest struct {
	Answers []AnswerInput `json:"answers" validate:"required,min=1,dive"`
}

// SubmissionView controls how much of a submission a caller may see.
type SubmissionView struct {
	IncludeAnswers bool
	RevealCorrect  bool
}

// FullSubmissionView is used for course managers.
var FullSubmissionView = SubmissionView{IncludeAnswers: true, RevealCorrect: true}

// AnswerResponse serializes a graded answer.
type AnswerResponse struct {
	QuestionIndex    int     `json:"question_index"`
	Value            *string `json:"value"`
	IsCorrect        *bool   `json:"is_correct"`
	Score            int     `json:"score"`
	Feedback         string  `json:"feedback,omitempty"`
	TimeSpentSeconds int     `json:"time_spent_seconds"`
}

// SubmissionResponse is returned when starting, submitting or listing attempts.
type SubmissionResponse struct {
	ID                  uint             `json:"id"`
	AssessmentID        uint             `json:"assessment_id"`
	UserID              uint             `json:"user_id"`
	AttemptNumber       int              `json:"attempt_number"`
	Status              string           `json:"status"`
	StartTime           time.Time        `json:"start_time"`
	SubmitTime          *time.Time       `json:"submit_time"`
	TimeSpentSeconds    int              `json:"time_spent_seconds"`
	IsTimeLimitExceeded bool             `json:"is_time_limit_exceeded"`
	TotalScore          int              `json:"total_score"`
	MaxPossibleScore    int              `json:"max_possible_score"`
	PassingScorePercent float64          `json:"passing_score_percent"`
	Percentage          float64          `json:"percentage"`
	Passed              bool             `json:"passed"`
	GradedBy            *uint            `json:"graded_by"`
	GradedAt            *time.Time       `json:"graded_at"`
	Resumed             bool             `json:"resumed"`
	Answers             []AnswerResponse `json:"answers"`
}

// NewSubmissionResponse converts a submission model into a DTO.
func NewSubmissionResponse(submission models.Submission, view SubmissionView) SubmissionResponse {
	answers := make([]AnswerResponse, 0, len(submission.Answers))
	if view.IncludeAnswers {
		for _, answer := range submission.Answers {
			item := AnswerResponse{
				QuestionIndex:    answer.QuestionIndex,
				Value:            answer.Value,
				IsCorrect:        answer.IsCorrect,
				Score:            answer.Score,
				Feedback:         answer.Feedback,
				TimeSpentSeconds: answer.TimeSpentSeconds,
			}
			if !view.RevealCorrect && answer.IsCorrect != nil && !*answer.IsCorrect && answer.Value != nil {
				item.Feedback = ""
			}
			answers = append(answers, item)
		}
	}

	return SubmissionResponse{
		ID:                  submission.ID,
		AssessmentID:        submission.AssessmentID,
		UserID:              submission.UserID,
		AttemptNumber:       submission.AttemptNumber,
		Status:              string(submission.Status),
		StartTime:           submission.StartTime,
		SubmitTime:          submission.SubmitTime,
		TimeSpentSeconds:    submission.TimeSpentSeconds,
		IsTimeLimitExceeded: submission.IsTimeLimitExceeded,
		TotalScore:          submission.TotalScore,
		MaxPossibleScore:    submission.MaxPossibleScore,
		PassingScorePercent: submission.PassingScorePercent,
		Percentage:          submission.Percentage,
		Passed:              submission.Passed,
		GradedBy:            submission.GradedBy,
		GradedAt:            submission.GradedAt,
		Answers:             answers,
	}
}
