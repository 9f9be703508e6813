package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"quiz-forge/internal/domain"
	"quiz-forge/internal/util"

	"github.com/go-playground/validator/v10"
)

// Validator checks request DTOs against their validate struct tags and reports failures as
// domain.ValidationErrors keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// basename rejects anything that could leave the library directory.
	_ = v.RegisterValidation("basename", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "" && s == filepath.Base(s) && !strings.ContainsAny(s, `/\`) && s != ".." && s != "."
	})
	return &Validator{validate: v}
}

// Struct validates s. It returns nil when s is valid.
func (v *Validator) Struct(s interface{}) domain.ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.ValidationErrors{domain.NewInvalidFormatError("body", err.Error())}
	}

	out := make(domain.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, translate(fe))
	}
	return out
}

// ValidateJobID checks a job id path parameter.
func (v *Validator) ValidateJobID(id string) domain.ValidationErrors {
	if strings.TrimSpace(id) == "" {
		return domain.ValidationErrors{domain.NewMissingFieldError("id")}
	}
	if !util.IsULID(id) {
		return domain.ValidationErrors{domain.NewInvalidFormatError("id", id)}
	}
	return nil
}

func translate(fe validator.FieldError) domain.ValidationError {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return domain.NewMissingFieldError(field)
	case "min", "max", "gte", "lte":
		return rangeError(fe, field)
	case "oneof":
		return domain.NewInvalidChoiceError(field, fe.Value(), strings.Fields(fe.Param()))
	}
	return domain.NewInvalidFormatError(field, fe.Value())
}

// rangeError reports a min/max failure. Strings and slices are bounded by length, numbers by
// value.
func rangeError(fe validator.FieldError, field string) domain.ValidationError {
	limit, _ := strconv.Atoi(fe.Param())
	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Array:
		unit = " items"
	}
	var message string
	switch fe.Tag() {
	case "min", "gte":
		message = fmt.Sprintf("must be at least %d%s", limit, unit)
	default:
		message = fmt.Sprintf("must be at most %d%s", limit, unit)
	}
	return domain.ValidationError{Field: field, Message: message, Value: fe.Value()}
}

// fieldPath drops the root struct name from the namespace ("SubmitQuizRequest.files[0]").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
