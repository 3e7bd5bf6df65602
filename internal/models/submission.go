package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmissionStatus tracks an attempt through its lifecycle.
type SubmissionStatus string

const (
	// SubmissionStatusInProgress is the only initial state.
	SubmissionStatusInProgress SubmissionStatus = "IN_PROGRESS"
	// SubmissionStatusSubmitted indicates answers were recorded and await manual review.
	SubmissionStatusSubmitted SubmissionStatus = "SUBMITTED"
	// SubmissionStatusGraded indicates the attempt was scored automatically.
	SubmissionStatusGraded SubmissionStatus = "GRADED"
	// SubmissionStatusReviewed indicates a human grader finalised the attempt.
	SubmissionStatusReviewed SubmissionStatus = "REVIEWED"
)

// Submission is one learner's numbered attempt at an Assessment.
type Submission struct {
	ID                  uint             `gorm:"primaryKey" json:"id"`
	AssessmentID        uint             `gorm:"not null;uniqueIndex:idx_submission_attempt,priority:1;index" json:"assessment_id"`
	UserID              uint             `gorm:"not null;uniqueIndex:idx_submission_attempt,priority:2" json:"user_id"`
	AttemptNumber       int              `gorm:"not null;uniqueIndex:idx_submission_attempt,priority:3" json:"attempt_number"`
	Status              SubmissionStatus `gorm:"size:32;not null;index" json:"status"`
	StartTime           time.Time        `gorm:"not null" json:"start_time"`
	SubmitTime          *time.Time       `json:"submit_time"`
	TimeSpentSeconds    int              `json:"time_spent_seconds"`
	IsTimeLimitExceeded bool             `json:"is_time_limit_exceeded"`
	AnswersRaw          datatypes.JSON   `gorm:"column:answers;type:json" json:"-"`
	TotalScore          int              `json:"total_score"`
	MaxPossibleScore    int              `gorm:"not null" json:"max_possible_score"`
	PassingScorePercent float64          `gorm:"not null" json:"passing_score_percent"`
	Percentage          float64          `json:"percentage"`
	Passed              bool             `json:"passed"`
	GradedBy            *uint            `json:"graded_by"`
	GradedAt            *time.Time       `json:"graded_at"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	Answers             []Answer         `gorm:"-" json:"answers"`
	Assessment          Assessment       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

// Answer is one response to one question within a Submission. IsCorrect is
// nil while the answer is pending manual review.
type Answer struct {
	QuestionIndex    int     `json:"question_index"`
	Value            *string `json:"value"`
	IsCorrect        *bool   `json:"is_correct"`
	Score            int     `json:"score"`
	Feedback         string  `json:"feedback"`
	TimeSpentSeconds int     `json:"time_spent_seconds"`
}

// BeforeSave serialises the answer list into its JSON column.
func (s *Submission) BeforeSave(tx *gorm.DB) error {
	if s.Answers == nil {
		s.AnswersRaw = datatypes.JSON([]byte("[]"))
		return nil
	}
	data, err := json.Marshal(s.Answers)
	if err != nil {
		return err
	}
	s.AnswersRaw = datatypes.JSON(data)
	return nil
}

// AfterFind hydrates the answer list after retrieval.
func (s *Submission) AfterFind(tx *gorm.DB) error {
	s.Answers = nil
	if len(s.AnswersRaw) == 0 {
		return nil
	}
	return json.Unmarshal(s.AnswersRaw, &s.Answers)
}

// IsFinalized reports whether the attempt has left the in-progress state.
func (s Submission) IsFinalized() bool {
	return s.Status != SubmissionStatusInProgress
}

// IsScored reports whether the attempt carries a final score.
func (s Submission) IsScored() bool {
	return s.Status == SubmissionStatusGraded || s.Status == SubmissionStatusReviewed
}
