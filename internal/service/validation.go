package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/victor297/student-clearance/internal/models"
)

// NewValidator returns a validator with the clearance specific tags
// registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	registerClearanceValidations(v)
	return v
}

func registerClearanceValidations(v *validator.Validate) {
	_ = v.RegisterValidation("clearance_department", func(fl validator.FieldLevel) bool {
		return models.Department(fl.Field().String()).Valid()
	})
}

func ensureValidator(v *validator.Validate) *validator.Validate {
	if v == nil {
		return NewValidator()
	}
	registerClearanceValidations(v)
	return v
}
