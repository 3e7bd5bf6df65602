package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// SubmissionFilter narrows submission queries for one assessment.
type SubmissionFilter struct {
	AssessmentID uint
	UserID       *uint
	Statuses     []models.SubmissionStatus
}

// SubmissionRepository defines data operations for attempts.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	ListAttempts(ctx context.Context, assessmentID, userID uint) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	CountByAssessment(ctx context.Context, assessmentID uint) (int64, error)
	Create(ctx context.Context, submission *models.Submission) error
	Finalize(ctx context.Context, submission *models.Submission) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{}).Where("assessment_id = ?", filter.AssessmentID)

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	var submissions []models.Submission
	if err := query.Order("user_id ASC").Order("attempt_number DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// ListAttempts returns every attempt of one learner, newest attempt first.
func (r *submissionRepository) ListAttempts(ctx context.Context, assessmentID, userID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Where("user_id = ?", userID).
		Order("attempt_number DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) CountByAssessment(ctx context.Context, assessmentID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("assessment_id = ?", assessmentID).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(submission).Error
	if isUniqueViolation(err) {
		return ErrDuplicateAttempt
	}
	return err
}

// Finalize writes the graded state only if the row is still in progress, so
// two concurrent submits cannot both succeed.
func (r *submissionRepository) Finalize(ctx context.Context, submission *models.Submission) error {
	answers, err := json.Marshal(submission.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	result := r.db.WithContext(ctx).
		Session(&gorm.Session{SkipHooks: true}).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", submission.ID, models.SubmissionStatusInProgress).
		Updates(map[string]interface{}{
			"status":                 submission.Status,
			"submit_time":            submission.SubmitTime,
			"time_spent_seconds":     submission.TimeSpentSeconds,
			"is_time_limit_exceeded": submission.IsTimeLimitExceeded,
			"answers":                datatypes.JSON(answers),
			"total_score":            submission.TotalScore,
			"percentage":             submission.Percentage,
			"passed":                 submission.Passed,
			"updated_at":             time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubmissionNotInProgress
	}
	return nil
}
