package service

import (
	"context"
	"strings"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// Platform roles carried in the JWT.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID   uint
	Role string
}

// IsAdmin reports whether the actor holds the platform admin role.
func (a Actor) IsAdmin() bool {
	return normalizeRole(a.Role) == RoleAdmin
}

// CourseAccess answers the authorization questions the engine needs from
// the course and enrollment collaborators.
type CourseAccess interface {
	CanManage(ctx context.Context, actor Actor, courseID uint) (bool, error)
	IsEnrolled(ctx context.Context, actor Actor, courseID uint) (bool, error)
}

type memberCourseAccess struct {
	members repository.CourseMemberRepository
}

// NewCourseAccess builds a CourseAccess backed by course membership records.
func NewCourseAccess(members repository.CourseMemberRepository) CourseAccess {
	return &memberCourseAccess{members: members}
}

func (a *memberCourseAccess) CanManage(ctx context.Context, actor Actor, courseID uint) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	role, err := a.role(ctx, actor, courseID)
	if err != nil {
		return false, err
	}
	return role == models.CourseRoleOwner, nil
}

// IsEnrolled treats course owners as enrolled so they can preview their own assessments.
func (a *memberCourseAccess) IsEnrolled(ctx context.Context, actor Actor, courseID uint) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	role, err := a.role(ctx, actor, courseID)
	if err != nil {
		return false, err
	}
	return role == models.CourseRoleLearner || role == models.CourseRoleOwner, nil
}

func (a *memberCourseAccess) role(ctx context.Context, actor Actor, courseID uint) (models.CourseRole, error) {
	if actor.ID == 0 {
		return "", nil
	}
	role, err := a.members.Role(ctx, courseID, actor.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return role, nil
}

func requireManager(ctx context.Context, access CourseAccess, actor Actor, courseID uint) error {
	ok, err := access.CanManage(ctx, actor, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCourseManager
	}
	return nil
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}
