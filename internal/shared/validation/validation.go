// Package validation turns struct-tag validation failures into a flat
// field->message map keyed by JSON path (e.g. "billing.postal_code").
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldErrors map[string]string

// UK-style and international postcodes: alphanumerics with inner spaces/dashes.
var postcodeRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{1,10}[A-Za-z0-9]$`)

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	_ = v.RegisterValidation("postcode", func(fl validator.FieldLevel) bool {
		return postcodeRe.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return &Validator{v: v}
}

// Struct validates s and returns nil when it is valid.
func (val *Validator) Struct(s any) FieldErrors {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	return FromError(err)
}

// FromError converts a validator (or bind) error to FieldErrors.
func FromError(err error) FieldErrors {
	out := FieldErrors{}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fieldKey(fe.Namespace())] = messageForTag(fe.Tag(), fe.Param())
		}
		return out
	}

	// type mismatch, malformed JSON etc.
	out["_"] = "Request body is invalid."
	return out
}

// "checkoutRequest.billing.postal_code" -> "billing.postal_code"
func fieldKey(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required", "required_unless", "required_if":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Must be at least " + param + "."
	case "max":
		return "Must be at most " + param + "."
	case "len":
		return "Must be exactly " + param + " characters."
	case "alpha":
		return "Must contain letters only."
	case "postcode":
		return "Enter a valid postal code."
	case "oneof":
		return "Must be one of: " + param + "."
	case "gte":
		return "Must be at least " + param + "."
	default:
		return "Invalid value."
	}
}
