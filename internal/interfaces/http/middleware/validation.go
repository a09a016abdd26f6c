package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// SetupValidator registers the sync_status and entity_type tags and reports
// fields by their json or form name
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("sync_status", func(fl validator.FieldLevel) bool {
			return integration.SyncStatus(fl.Field().String()).IsValid()
		})
		_ = v.RegisterValidation("entity_type", func(fl validator.FieldLevel) bool {
			_, err := integration.ParseEntityType(fl.Field().String())
			return err == nil
		})

		// Use JSON tag names for field names in errors
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
	}
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
	requestID := GetRequestID(c)
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, requestID))
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "min", "gte":
		return "Must be at least " + e.Param()
	case "max", "lte":
		return "Must be at most " + e.Param()
	case "sync_status":
		return "Must be one of: PENDING SYNCED ERROR DISABLED GONE"
	case "entity_type":
		return "Unknown entity type"
	default:
		return "Invalid value"
	}
}
