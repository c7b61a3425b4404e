// internal/utils/validator.go
package utils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate *validator.Validate

var csvIDsPattern = regexp.MustCompile(`^\s*\d+\s*(,\s*\d+\s*)*$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("csv_ids", validateCSVIDs)
	validate.RegisterValidation("decimal_amount", validateDecimalAmount)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// validateCSVIDs accepts a comma separated list of positive integers.
func validateCSVIDs(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if !csvIDsPattern.MatchString(value) {
		return false
	}
	ids, err := ParseIDList(value)
	return err == nil && len(ids) > 0
}

// validateDecimalAmount accepts a non-negative decimal with at most two
// fractional digits.
func validateDecimalAmount(fl validator.FieldLevel) bool {
	amount, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	if err != nil {
		return false
	}
	return !amount.IsNegative() && amount.Exponent() >= -2
}

// ParseIDList parses "1, 2,3" into ids. Zero is rejected.
func ParseIDList(value string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, err
		}
		if id == 0 {
			return nil, strconv.ErrRange
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param() + " characters"
	case "max":
		return e.Field() + " must be at most " + e.Param() + " characters"
	case "csv_ids":
		return e.Field() + " must be a comma separated list of ids"
	case "decimal_amount":
		return e.Field() + " must be a non-negative amount with at most two decimals"
	default:
		return e.Field() + " is invalid"
	}
}
