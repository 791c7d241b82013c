package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/wiki-engagement/internal/errors"
)

// RequestValidator wraps go-playground/validator for request bodies
type RequestValidator struct {
	validator *validator.Validate
}

// NewRequestValidator creates a new RequestValidator
func NewRequestValidator() *RequestValidator {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validator: v}
}

// Validate checks struct tags and returns a 400 categorized error naming the first bad field
func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return apperrors.NewInvalidParameterError(fe.Field(), fmt.Sprintf("failed on '%s' validation", fe.Tag()))
		}
		return apperrors.NewInvalidParameterError("body", err.Error())
	}
	return nil
}
