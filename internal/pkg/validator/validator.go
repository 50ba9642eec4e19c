package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

var (
	pinPattern    = regexp.MustCompile(`^[0-9]{4,6}$`)
	msisdnPattern = regexp.MustCompile(`^\+?[0-9 ()-]{9,16}$`)
)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Card PIN: 4-6 numeric digits
	validate.RegisterValidation("pin", func(fl validator.FieldLevel) bool {
		return IsValidPin(fl.Field().String())
	})

	// Phone number as typed by a user, normalized later
	validate.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return msisdnPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	validate.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "mtn", "airtel":
			return true
		}
		return false
	})
}

// IsValidPin reports whether pin is 4-6 numeric digits
func IsValidPin(pin string) bool {
	return pinPattern.MatchString(pin)
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "uuid":
			errors[field] = "Invalid UUID"
		case "pin":
			errors[field] = "PIN must be 4 to 6 digits"
		case "msisdn":
			errors[field] = "Invalid phone number"
		case "provider":
			errors[field] = "Invalid provider. Must be: mtn or airtel"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}
