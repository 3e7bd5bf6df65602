package models

import "time"

// CourseRole describes how a user participates in a course.
type CourseRole string

const (
	CourseRoleOwner   CourseRole = "owner"
	CourseRoleLearner CourseRole = "learner"
)

// CourseMember links a user to a course. It is the local projection of the
// course/enrollment service used for authorization checks.
type CourseMember struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	CourseID  uint       `gorm:"not null;uniqueIndex:idx_course_member,priority:1" json:"course_id"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_course_member,priority:2" json:"user_id"`
	Role      CourseRole `gorm:"size:16;not null" json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}
