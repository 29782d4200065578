package report

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ripoti/core"
)

var (
	metricKeyTag   = "metrickey"
	metricKeyText  = "{0} must only hold lowercase metric keys like `attendance.rate`"
	metricKeyRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)*$`)
)

// InitValidators registers the report validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(metricKeyTag, metricKeyValidation)
	core.RegisterCustomTranslation(validate, translator, metricKeyTag, metricKeyText)
}

// metricKeyValidation only allows dotted snake_case metric keys.
func metricKeyValidation(fl validator.FieldLevel) bool {
	return metricKeyRegex.MatchString(fl.Field().String())
}

// NewValidator returns a validator with the global & report validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	InitValidators(validate, translator)
	return validate, translator
}
