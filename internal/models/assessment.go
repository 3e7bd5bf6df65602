package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssessmentKind classifies a graded unit.
type AssessmentKind string

const (
	AssessmentKindQuiz       AssessmentKind = "QUIZ"
	AssessmentKindAssignment AssessmentKind = "ASSIGNMENT"
	AssessmentKindExam       AssessmentKind = "EXAM"
	AssessmentKindSurvey     AssessmentKind = "SURVEY"
)

// Assessment is a graded unit belonging to a course. Questions are stored
// inline as a JSON column and hydrated on read.
type Assessment struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	CourseID            uint           `gorm:"not null;index" json:"course_id"`
	CreatedBy           uint           `gorm:"not null" json:"created_by"`
	Title               string         `gorm:"size:255;not null" json:"title"`
	Description         string         `gorm:"type:text" json:"description"`
	Kind                AssessmentKind `gorm:"size:32;not null" json:"kind"`
	QuestionsRaw        datatypes.JSON `gorm:"column:questions;type:json" json:"-"`
	TimeLimitMinutes    *int           `json:"time_limit_minutes"`
	PassingScorePercent float64        `gorm:"not null" json:"passing_score_percent"`
	MaxAttempts         int            `gorm:"not null;default:1" json:"max_attempts"`
	IsPublished         bool           `gorm:"index" json:"is_published"`
	IsAutoGraded        bool           `json:"is_auto_graded"`
	AllowReview         bool           `json:"allow_review"`
	ShowCorrectAnswers  bool           `json:"show_correct_answers"`
	TotalPoints         int            `gorm:"not null" json:"total_points"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	Questions           []Question     `gorm:"-" json:"questions"`
}

// BeforeSave serialises questions into the JSON column and keeps the
// derived point total in sync with them.
func (a *Assessment) BeforeSave(tx *gorm.DB) error {
	a.TotalPoints = SumPoints(a.Questions)
	if a.Questions == nil {
		a.QuestionsRaw = datatypes.JSON([]byte("[]"))
		return nil
	}
	data, err := json.Marshal(a.Questions)
	if err != nil {
		return err
	}
	a.QuestionsRaw = datatypes.JSON(data)
	return nil
}

// AfterFind hydrates the question list after retrieval.
func (a *Assessment) AfterFind(tx *gorm.DB) error {
	a.Questions = nil
	if len(a.QuestionsRaw) == 0 {
		return nil
	}
	return json.Unmarshal(a.QuestionsRaw, &a.Questions)
}

// TimeLimit returns the configured limit as a duration, or zero when unlimited.
func (a Assessment) TimeLimit() time.Duration {
	if a.TimeLimitMinutes == nil || *a.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(*a.TimeLimitMinutes) * time.Minute
}

// SumPoints totals the point value of the supplied questions.
func SumPoints(questions []Question) int {
	total := 0
	for _, q := range questions {
		total += q.Points
	}
	return total
}
