package validator

import (
	"agencydesk/pkg/logger"
	"agencydesk/pkg/model"
	"agencydesk/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type RequestValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewRequestValidator(log *logger.Logger) *RequestValidator {
	v := validator.New()
	v.RegisterStructValidation(validatePreferredSlot, model.Submission{})

	return &RequestValidator{
		validate: v,
		logger:   log,
	}
}

// validatePreferredSlot requires the preferred date and time to be given together.
func validatePreferredSlot(sl validator.StructLevel) {
	s := sl.Current().Interface().(model.Submission)
	switch {
	case s.PreferredDate != "" && s.PreferredTime == "":
		sl.ReportError(s.PreferredTime, "PreferredTime", "PreferredTime", "required_with", "PreferredDate")
	case s.PreferredTime != "" && s.PreferredDate == "":
		sl.ReportError(s.PreferredDate, "PreferredDate", "PreferredDate", "required_with", "PreferredTime")
	}
}

func (v *RequestValidator) ValidateSubmission(s *model.Submission) error {
	return validation.Struct(v.validate, s)
}

func (v *RequestValidator) ValidateConfirmation(c *model.Confirmation) error {
	return validation.Struct(v.validate, c)
}

func (v *RequestValidator) ValidateCancellation(c *model.Cancellation) error {
	return validation.Struct(v.validate, c)
}

func (v *RequestValidator) ValidateCompletion(c *model.Completion) error {
	return validation.Struct(v.validate, c)
}
