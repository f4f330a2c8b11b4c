package poll

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/socportal/jumuiya/core"
)

// RegisterValidators registers the poll validation rules on validate.
// The `level` tag is registered by the account package.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(pollStructValidation, NewPoll{})
	core.RegisterCustomTranslation(validate, translator, distinctOptionsTag, distinctOptionsText)
}
