package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

// APIError represents a structured API error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error.
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// toAPIError maps domain errors onto HTTP responses.
func toAPIError(err error) *APIError {
	var (
		apiErr        *APIError
		validationErr *models.ValidationError
		notFoundErr   *models.NotFoundError
		incompleteErr *models.IncompleteFormError
		synthesisErr  *models.SynthesisError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &validationErr):
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "VALIDATION_ERROR",
			Message: validationErr.Reason,
		}
	case errors.As(err, &notFoundErr):
		return &APIError{
			Status:  http.StatusNotFound,
			Code:    "NOT_FOUND",
			Message: notFoundErr.Error(),
		}
	case errors.As(err, &incompleteErr):
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "FORM_INCOMPLETE",
			Message: fmt.Sprintf("Form incomplete. %d fields remaining.", incompleteErr.Remaining()),
		}
	case errors.As(err, &synthesisErr):
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "SYNTHESIS_ERROR",
			Message: "Error completing form",
			Details: synthesisErr.Err.Error(),
		}
	default:
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred",
			Details: err.Error(),
		}
	}
}

// respondError writes err as a JSON APIError.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		slog.Error("Request failed.", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Warn("Request rejected.", "method", r.Method, "path", r.URL.Path, "code", apiErr.Code, "error", err)
	}
	respondJSON(w, apiErr.Status, apiErr)
}
