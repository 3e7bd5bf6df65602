package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// QuestionRequest describes one question in a create or replace payload.
type QuestionRequest struct {
	Text          string   `json:"text" validate:"required,max=5000"`
	Type          string   `json:"type" validate:"required,oneof=MULTIPLE_CHOICE SINGLE_CHOICE TRUE_FALSE SHORT_ANSWER ESSAY FILE_UPLOAD"`
	Options       []string `json:"options" validate:"omitempty,max=26,dive,required,max=500"`
	CorrectAnswer string   `json:"correct_answer" validate:"max=2000"`
	Points        int      `json:"points" validate:"required,gte=1"`
	Order         *int     `json:"order" validate:"omitempty,gte=1"`
	IsRequired    *bool    `json:"is_required"`
	Explanation   string   `json:"explanation" validate:"max=5000"`
}

// AssessmentCreateRequest is the payload used to define a new assessment.
type AssessmentCreateRequest struct {
	Title               string            `json:"title" validate:"required,max=255"`
	Description         string            `json:"description" validate:"max=10000"`
	Kind                string            `json:"kind" validate:"required,oneof=QUIZ ASSIGNMENT EXAM SURVEY"`
	Questions           []QuestionRequest `json:"questions" validate:"required,min=1,dive"`
	TimeLimitMinutes    *int              `json:"time_limit_minutes" validate:"omitempty,gte=1"`
	PassingScorePercent float64           `json:"passing_score_percent" validate:"gte=0,lte=100"`
	MaxAttempts         int               `json:"max_attempts" validate:"required,gte=1"`
	IsPublished         bool              `json:"is_published"`
	IsAutoGraded        bool              `json:"is_auto_graded"`
	AllowReview         bool              `json:"allow_review"`
	ShowCorrectAnswers  bool              `json:"show_correct_answers"`
}

// AssessmentUpdateRequest captures partial updates. A non-nil Questions list
// replaces every question.
type AssessmentUpdateRequest struct {
	Title               *string           `json:"title" validate:"omitempty,min=1,max=255"`
	Description         *string           `json:"description" validate:"omitempty,max=10000"`
	Kind                *string           `json:"kind" validate:"omitempty,oneof=QUIZ ASSIGNMENT EXAM SURVEY"`
	Questions           []QuestionRequest `json:"questions" validate:"omitempty,dive"`
	TimeLimitMinutes    *int              `json:"time_limit_minutes" validate:"omitempty,gte=1"`
	ClearTimeLimit      bool              `json:"clear_time_limit"`
	PassingScorePercent *float64          `json:"passing_score_percent" validate:"omitempty,gte=0,lte=100"`
	MaxAttempts         *int              `json:"max_attempts" validate:"omitempty,gte=1"`
	IsPublished         *bool             `json:"is_published"`
	IsAutoGraded        *bool             `json:"is_auto_graded"`
	AllowReview         *bool             `json:"allow_review"`
	ShowCorrectAnswers  *bool             `json:"show_correct_answers"`
}

// AssessmentListRequest defines filters for listing a course's assessments.
type AssessmentListRequest struct {
	Page     int
	PageSize int
	Search   string
}

// QuestionResponse serializes a question. CorrectAnswer and Explanation are
// omitted from learner views unless answers may be revealed.
type QuestionResponse struct {
	Order         int      `json:"order"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Points        int      `json:"points"`
	IsRequired    bool     `json:"is_required"`
	Explanation   string   `json:"explanation,omitempty"`
}

// AssessmentResponse is returned to API clients.
type AssessmentResponse struct {
	ID                  uint               `json:"id"`
	CourseID            uint               `json:"course_id"`
	CreatedBy           uint               `json:"created_by"`
	Title               string             `json:"title"`
	Description         string             `json:"description"`
	Kind                string             `json:"kind"`
	Questions           []QuestionResponse `json:"questions"`
	TimeLimitMinutes    *int               `json:"time_limit_minutes"`
	PassingScorePercent float64            `json:"passing_score_percent"`
	MaxAttempts         int                `json:"max_attempts"`
	IsPublished         bool               `json:"is_published"`
	IsAutoGraded        bool               `json:"is_auto_graded"`
	AllowReview         bool               `json:"allow_review"`
	ShowCorrectAnswers  bool               `json:"show_correct_answers"`
	TotalPoints         int                `json:"total_points"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// AssessmentListResponse wraps a paginated assessment list.
type AssessmentListResponse struct {
	Items      []AssessmentResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewAssessmentResponse converts a model into a DTO. revealAnswers controls
// whether correct answers and explanations are included.
func NewAssessmentResponse(assessment models.Assessment, revealAnswers bool) AssessmentResponse {
	questions := make([]QuestionResponse, 0, len(assessment.Questions))
	for _, q := range assessment.Questions {
		item := QuestionResponse{
			Order:      q.Order,
			Text:       q.Text,
			Type:       string(q.Type),
			Options:    append([]string(nil), q.Options...),
			Points:     q.Points,
			IsRequired: q.IsRequired,
		}
		if revealAnswers {
			item.CorrectAnswer = q.CorrectAnswer
			item.Explanation = q.Explanation
		}
		questions = append(questions, item)
	}

	return AssessmentResponse{
		ID:                  assessment.ID,
		CourseID:            assessment.CourseID,
		CreatedBy:           assessment.CreatedBy,
		Title:               assessment.Title,
		Description:         assessment.Description,
		Kind:                string(assessment.Kind),
		Questions:           questions,
		TimeLimitMinutes:    assessment.TimeLimitMinutes,
		PassingScorePercent: assessment.PassingScorePercent,
		MaxAttempts:         assessment.MaxAttempts,
		IsPublished:         assessment.IsPublished,
		IsAutoGraded:        assessment.IsAutoGraded,
		AllowReview:         assessment.AllowReview,
		ShowCorrectAnswers:  assessment.ShowCorrectAnswers,
		TotalPoints:         assessment.TotalPoints,
		CreatedAt:           assessment.CreatedAt,
		UpdatedAt:           assessment.UpdatedAt,
	}
}
