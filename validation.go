package homeai

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report json tag names so errors match the wire fields.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the request without touching the network. Only the first
// violation is reported.
func (r *RenderJobRequest) Validate() error {
	return validateStruct(r)
}

// Validate checks the request without touching the network.
func (r *CheckoutRequest) Validate() error {
	return validateStruct(r)
}

func validateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return NewValidationError("request", err.Error())
	}
	return nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	field := fe.Field()
	// dive reports the element as target_parts[i]; keep the index.
	if ns := fe.Namespace(); strings.Contains(ns, "[") {
		field = ns[strings.Index(ns, ".")+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "min":
		msg = fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "unique":
		msg = "must not contain duplicates"
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "url":
		msg = fmt.Sprintf("must be an absolute URL, got %q", fmt.Sprint(fe.Value()))
	default:
		msg = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return NewValidationError(field, msg)
}
