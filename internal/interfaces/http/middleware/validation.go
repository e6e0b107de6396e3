package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// SetupValidator configures gin's validator with JSON field names and the
// custom tags used by request DTOs:
//
//	decimal             string holding a decimal number
//	document_type       invoice, estimate or credit_note
//	reset_policy        never, fiscal_year or manual
//	numbering_template  printable, at most numbering.MaxTemplateLength bytes
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	registerValidations(v)
}

func registerValidations(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("document_type", func(fl validator.FieldLevel) bool {
		_, err := numbering.ParseDocumentType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("reset_policy", func(fl validator.FieldLevel) bool {
		return numbering.ResetPolicy(fl.Field().String()).IsValid()
	})
	// unknown placeholders are allowed here and reported as config warnings
	_ = v.RegisterValidation("numbering_template", func(fl validator.FieldLevel) bool {
		tpl := fl.Field().String()
		if len(tpl) > numbering.MaxTemplateLength {
			return false
		}
		return strings.IndexFunc(tpl, func(r rune) bool { return !unicode.IsPrint(r) }) < 0
	})
}

// FormatValidationErrors formats validation errors into a standard response
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   e.Field(),
				Message: getValidationMessage(e),
			})
		}
	}

	return dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	)
}

// HandleValidationError returns a validation error response
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "decimal":
		return "Must be a decimal number"
	case "document_type":
		return "Must be one of: invoice estimate credit_note"
	case "reset_policy":
		return "Must be one of: never fiscal_year manual"
	case "numbering_template":
		return "Must be printable text of at most " + strconv.Itoa(numbering.MaxTemplateLength) + " characters"
	case "datetime":
		return "Must be a date in " + e.Param() + " format"
	default:
		return "Invalid value"
	}
}
