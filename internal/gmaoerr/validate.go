package gmaoerr

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CheckStruct runs the validate struct tags of v and converts failures
// into ValidationErrors joined together.
func CheckStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Reason: err.Error()}
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		errs = append(errs, &ValidationError{Field: strings.ToLower(fe.Field()), Reason: "failed " + reason})
	}
	return errors.Join(errs...)
}
