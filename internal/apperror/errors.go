package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var (
	ErrValidation   = New("VALIDATION_ERROR", "Validation failed", http.StatusBadRequest)
	ErrNotFound     = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrConflict     = New("CONFLICT", "Resource conflict", http.StatusConflict)
	ErrInvalidState = New("INVALID_STATE", "Operation not allowed in the current state", http.StatusUnprocessableEntity)
	ErrUnauthorized = New("UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized)
	ErrForbidden    = New("FORBIDDEN", "Access denied", http.StatusForbidden)
	ErrInternal     = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
)

// AppError is the error type every service returns. Code identifies the taxonomy
// entry; two AppErrors match under errors.Is when their codes are equal.
type AppError struct {
	Code       string
	Message    string
	StatusCode int
	Details    map[string]interface{}
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy carrying a caller-facing message.
func (e *AppError) WithMessage(format string, args ...interface{}) *AppError {
	clone := e.clone()
	clone.Message = fmt.Sprintf(format, args...)
	return clone
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	clone := e.clone()
	for k, v := range details {
		clone.Details[k] = v
	}
	return clone
}

func (e *AppError) WithError(err error) *AppError {
	clone := e.clone()
	clone.Err = err
	return clone
}

func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    make(map[string]interface{}),
	}
}

func (e *AppError) clone() *AppError {
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	return &clone
}

func Validation(format string, args ...interface{}) *AppError {
	return ErrValidation.WithMessage(format, args...)
}

func NotFound(resource string) *AppError {
	return ErrNotFound.WithMessage("%s not found", resource).
		WithDetails(map[string]interface{}{"resource": strings.ToLower(resource)})
}

func Conflict(format string, args ...interface{}) *AppError {
	return ErrConflict.WithMessage(format, args...)
}

func InvalidState(format string, args ...interface{}) *AppError {
	return ErrInvalidState.WithMessage(format, args...)
}

func Forbidden(format string, args ...interface{}) *AppError {
	return ErrForbidden.WithMessage(format, args...)
}

// Database wraps an unexpected storage error as an internal error.
func Database(err error) *AppError {
	return ErrInternal.WithMessage("database error").WithError(err)
}

// FromError normalises any error into an AppError.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound.WithError(err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict.WithError(err)
	case errors.Is(err, context.Canceled):
		return New("REQUEST_CANCELED", "Request canceled by client", http.StatusRequestTimeout).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return New("REQUEST_TIMEOUT", "Request timed out", http.StatusGatewayTimeout).WithError(err)
	}
	return ErrInternal.WithError(err)
}

// ParseValidationErrors converts binding errors into a VALIDATION_ERROR with per-field details.
func ParseValidationErrors(err error) *AppError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return ErrValidation.WithMessage("Invalid request payload").WithError(err)
	}

	fieldErrors := make([]map[string]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fieldErrors = append(fieldErrors, map[string]string{
			"field":   fieldErr.Field(),
			"message": translateValidationError(fieldErr),
		})
	}

	return ErrValidation.WithMessage("Invalid request payload").
		WithDetails(map[string]interface{}{"fields": fieldErrors})
}

func translateValidationError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	default:
		return fmt.Sprintf("%s failed '%s' validation", field, fe.Tag())
	}
}

// JSONFieldName makes validator report fields by their json tag, e.g. "transaction_id".
func JSONFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}
