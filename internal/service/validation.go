package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/recurrence"
)

// newAttendanceValidator registers the attendance-specific tags on validate.
func newAttendanceValidator(validate *validator.Validate) *validator.Validate {
	if validate == nil {
		validate = validator.New()
	}
	validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := recurrence.ParseClock(fl.Field().String())
		return err == nil
	})
	validate.RegisterValidation("checkin_method", func(fl validator.FieldLevel) bool {
		return models.CheckInMethod(strings.ToUpper(fl.Field().String())).Valid()
	})
	validate.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	return validate
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			strings.ToLower(fe.Field())+" failed "+fe.Tag()+" validation")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, appErrors.ErrValidation.Message)
}
