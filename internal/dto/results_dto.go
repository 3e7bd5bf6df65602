package dto

import "time"

// SubmissionListResponse wraps an attempt history.
type SubmissionListResponse struct {
	Items []SubmissionResponse `json:"items"`
	Total int                  `json:"total"`
}

// SubmissionStatisticsResponse summarises scored attempts of one assessment.
type SubmissionStatisticsResponse struct {
	AssessmentID            uint      `json:"assessment_id"`
	ScoredCount             int       `json:"scored_count"`
	PendingReviewCount      int       `json:"pending_review_count"`
	DistinctLearners        int       `json:"distinct_learners"`
	AveragePercentage       float64   `json:"average_percentage"`
	MinPercentage           float64   `json:"min_percentage"`
	MaxPercentage           float64   `json:"max_percentage"`
	PassCount               int       `json:"pass_count"`
	PassRate                float64   `json:"pass_rate"`
	AverageTimeSpentSeconds float64   `json:"average_time_spent_seconds"`
	TimeLimitExceededCount  int       `json:"time_limit_exceeded_count"`
	GeneratedAt             time.Time `json:"generated_at"`
	CacheHit                bool      `json:"cache_hit"`
}
