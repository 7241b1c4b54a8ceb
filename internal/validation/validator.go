// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrorCode is the API error code of every validation failure.
const ErrorCode = "VALIDATION_FAILED"

var (
	// domainPattern matches tenant domain identifiers such as "0", "17" or "acme-eu".
	domainPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

	// usernamePattern: 3 to 32 letters, digits, dots, dashes or
	// underscores, starting with a letter or digit.
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{2,31}$`)
)

var customTags = map[string]validator.Func{
	"crud_action": func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "C", "R", "U", "D":
			return true
		}
		return false
	},
	"domain": func(fl validator.FieldLevel) bool {
		return domainPattern.MatchString(fl.Field().String())
	},
	"username": func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	},
}

var getValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	for tag, fn := range customTags {
		// Registration only fails for empty tags or nil functions.
		_ = v.RegisterValidation(tag, fn)
	}
	return v
})

// GetValidator returns the shared validator with the crud_action, domain
// and username tags registered. Field errors use JSON names.
func GetValidator() *validator.Validate {
	return getValidator()
}

// FieldError is one failed rule on one field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Error implements error.
func (e FieldError) Error() string {
	return e.Message
}

// RequestValidationError collects every failed rule of a request body.
type RequestValidationError struct {
	Fields []FieldError
}

// Error joins the field messages with "; ".
func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// APIError is the error body produced by ToAPIError. It mirrors the api
// package's error shape without importing it.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError converts to the API error format. Details always carries the
// full list under "fields".
func (ve *RequestValidationError) ToAPIError() *APIError {
	if len(ve.Fields) == 0 {
		return &APIError{Code: ErrorCode, Message: "Validation failed"}
	}
	return &APIError{
		Code:    ErrorCode,
		Message: ve.Error(),
		Details: map[string]interface{}{"fields": ve.Fields},
	}
}

// ValidateStruct validates s and returns nil or every failed rule.
//
//	if verr := validation.ValidateStruct(&body); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    ...
//	}
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{
			{Field: "body", Tag: "invalid", Message: err.Error()},
		}}
	}

	out := &RequestValidationError{Fields: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		out.Fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		}
	}
	return out
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

// messages holds the text for each tag. %[1]s is the field, %[2]s the
// tag parameter.
var messages = map[string]string{
	"required":    "%[1]s is required",
	"email":       "%[1]s must be a valid email address",
	"numeric":     "%[1]s must be numeric",
	"crud_action": "%[1]s must be one of C, R, U, D",
	"domain":      "%[1]s must be a domain identifier of letters, digits, dashes or underscores",
	"username":    "%[1]s must be 3 to 32 letters, digits, dots, dashes or underscores",
	"oneof":       "%[1]s must be one of: %[2]s",
	"len":         "%[1]s must be exactly %[2]s characters",
	"gte":         "%[1]s must be greater than or equal to %[2]s",
	"lte":         "%[1]s must be less than or equal to %[2]s",
	"gt":          "%[1]s must be greater than %[2]s",
	"lt":          "%[1]s must be less than %[2]s",
	"min":         "%[1]s must be at least %[2]s",
	"max":         "%[1]s must be at most %[2]s",
}

func message(fe validator.FieldError) string {
	tmpl, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
	msg := fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	if (fe.Tag() == "min" || fe.Tag() == "max") && fe.Kind() == reflect.String {
		msg += " characters"
	}
	return msg
}
