package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError carries the field -> failed tag map returned to form callers.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, field+":"+tag)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}

// ValidateStruct runs the struct's `validate` tags and folds failures into a ValidationError.
func ValidateStruct(input any) error {
	err := getValidator().Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return &ValidationError{Fields: ProcessValidationErrors(verrs)}
}

func ProcessValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		// drop the root struct name: "NewClient.Address.City" -> "Address.City"
		ns := ve.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		errorResponse[ns] = ve.Tag()
	}
	return errorResponse
}

// DefaultPhoneRegion is the region used when a mobile number has no international prefix.
func DefaultPhoneRegion() string {
	if v := strings.TrimSpace(os.Getenv("DEFAULT_PHONE_REGION")); v != "" {
		return strings.ToUpper(v)
	}
	return "US"
}

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}
	return nil
}
