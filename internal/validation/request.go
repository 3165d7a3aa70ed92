package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest wraps every request-body validation failure.
var ErrInvalidRequest = errors.New("invalid request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("location", func(fl validator.FieldLevel) bool {
		_, err := ValidateLocation(fl.Field().String(), LocationMinLen, LocationMaxLen)
		return err == nil
	})
	return v
}

// Struct validates a decoded request body against its `validate` tags.
// The returned error wraps ErrInvalidRequest and names the first failing field.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, describe(fieldErrs[0]))
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " is too long"
	case "location":
		return fe.Field() + " is not a valid location"
	}
	return fe.Field() + " is invalid"
}
