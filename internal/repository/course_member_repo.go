package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// CourseMemberRepository resolves course roles for authorization checks.
type CourseMemberRepository interface {
	Role(ctx context.Context, courseID, userID uint) (models.CourseRole, error)
	Upsert(ctx context.Context, member *models.CourseMember) error
}

type courseMemberRepository struct {
	db *gorm.DB
}

// NewCourseMemberRepository builds the membership repository.
func NewCourseMemberRepository(db *gorm.DB) CourseMemberRepository {
	return &courseMemberRepository{db: db}
}

// Role returns gorm.ErrRecordNotFound when the user is not a member.
func (r *courseMemberRepository) Role(ctx context.Context, courseID, userID uint) (models.CourseRole, error) {
	var member models.CourseMember
	if err := r.db.WithContext(ctx).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		First(&member).Error; err != nil {
		return "", err
	}
	return member.Role, nil
}

func (r *courseMemberRepository) Upsert(ctx context.Context, member *models.CourseMember) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(member).Error
}
