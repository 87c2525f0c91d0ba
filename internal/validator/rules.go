package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewSliceValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("slice_name", nameValidator),
		},
		{
			Rule: registerFn("ssh_key", sshKeyValidator),
		},
		{
			Rule: registerFn("lease_time", leaseTimeValidator),
		},
	}
}

func NewTokenValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("project_id", projectIDValidator),
		},
	}
}
