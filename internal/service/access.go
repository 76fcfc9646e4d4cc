package service

import (
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

// authorizeInstructor allows admins everywhere and teachers on their own courses.
func authorizeInstructor(course *models.Course, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if course == nil || course.InstructorID == nil || *course.InstructorID == actor.UserID {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "course is taught by another instructor")
	default:
		return appErrors.ErrForbidden
	}
}

func actorID(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}
