package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

var senderIDPattern = regexp.MustCompile(`^[A-Za-z0-9 ]{1,11}$`)

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
	// Alphanumeric sender id, max 11 chars (GSM alphanumeric originator limit)
	validate.RegisterValidation("sender_id", func(fl validator.FieldLevel) bool {
		return senderIDPattern.MatchString(fl.Field().String())
	})

	// Recipient file type
	validate.RegisterValidation("file_type", func(fl validator.FieldLevel) bool {
		ft := fl.Field().String()
		validTypes := []string{"text", "csv", ""}
		for _, t := range validTypes {
			if ft == t {
				return true
			}
		}
		return false
	})

	// Ledger adjustment mode
	validate.RegisterValidation("adjust_mode", func(fl validator.FieldLevel) bool {
		mode := fl.Field().String()
		return mode == "delta" || mode == "set"
	})
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
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "oneof":
			errors[field] = "Value must be one of: " + err.Param()
		case "sender_id":
			errors[field] = "Sender id must be 1-11 alphanumeric characters"
		case "file_type":
			errors[field] = "File type must be: text or csv"
		case "adjust_mode":
			errors[field] = "Mode must be: delta or set"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
