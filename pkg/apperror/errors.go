package apperror

import (
	"errors"
	"net/http"

	"github.com/switchguard/switchguard/internal/domain"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrValidation     = &AppError{Code: "VALIDATION", Message: "Invalid request", Status: http.StatusBadRequest}
	ErrUnauthorized   = &AppError{Code: "UNAUTHORIZED", Message: "Unauthorized", Status: http.StatusUnauthorized}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Not found", Status: http.StatusNotFound}
	ErrConflict       = &AppError{Code: "CONFLICT", Message: "Conflict", Status: http.StatusConflict}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error", Status: http.StatusInternalServerError}
)

func NewValidation(message string) *AppError {
	return &AppError{Code: "VALIDATION", Message: message, Status: http.StatusBadRequest}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: message, Status: http.StatusUnauthorized}
}

func NewNotFound(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, Status: http.StatusNotFound}
}

func NewConflict(message string) *AppError {
	return &AppError{Code: "CONFLICT", Message: message, Status: http.StatusConflict}
}

func NewInternal(message string) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError}
}

// Map translates domain errors into the API error taxonomy. Conflicts are
// retryable-by-reread; validation and not-found carry no side effects.
func Map(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrSameMode),
		errors.Is(err, domain.ErrInvalidDecision):
		return NewValidation(err.Error())
	case errors.Is(err, domain.ErrModeRecordNotFound),
		errors.Is(err, domain.ErrRequestNotFound):
		return NewNotFound(err.Error())
	case errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrRequestResolved):
		return NewConflict(err.Error())
	default:
		return NewInternal("An unexpected error occurred")
	}
}
