package validator

import (
	"agencydesk/pkg/logger"
	"agencydesk/pkg/model"
	"agencydesk/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type BlockedSlotValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBlockedSlotValidator(log *logger.Logger) *BlockedSlotValidator {
	return &BlockedSlotValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *BlockedSlotValidator) Validate(input *model.BlockInput) error {
	return validation.Struct(v.validate, input)
}
