package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
)

var ErrValidationFailed = errors.New("validation failed")

// ValidationError represents a single field failure
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

func (ve ValidationErrors) Is(target error) bool {
	return target == ErrValidationFailed
}

// Validator wraps go-playground/validator with the rules of this service
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	// report json names so errors match the request payloads
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerRules()
	return v
}

// Validate checks s and returns ValidationErrors, or nil when s is valid.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: errorMessage(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

func (v *Validator) registerRules() {
	// Passing score validation (0-100)
	v.validate.RegisterValidation("passing_score", func(fl validator.FieldLevel) bool {
		score := fl.Field().Float()
		return score >= 0 && score <= 100
	})

	v.validate.RegisterValidation("attempts_allowed", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() >= 1
	})

	v.validate.RegisterValidation("slot_key", func(fl validator.FieldLevel) bool {
		_, err := models.ParseSlotKey(fl.Field().String())
		return err == nil
	})

	v.validate.RegisterStructValidation(func(sl validator.StructLevel) {
		test := sl.Current().Interface().(models.Test)
		if test.AvailableFrom != nil && test.AvailableUntil != nil && !test.AvailableUntil.After(*test.AvailableFrom) {
			sl.ReportError(test.AvailableUntil, "available_until", "AvailableUntil", "window", "")
		}
	}, models.Test{})
}

func errorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())
	case "passing_score":
		return "must be between 0 and 100"
	case "attempts_allowed":
		return "must be at least 1"
	case "slot_key":
		return "must look like question_{n}"
	case "window":
		return "must be after available_from"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", err.Tag())
	}
}
