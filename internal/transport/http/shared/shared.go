// Package shared holds the JSON response helpers used by every HTTP handler,
// including the domain error to HTTP status translation.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "bordereau/pkg/domain-errors"
)

// errorEnvelope is the uniform error body: a stable machine code plus the
// user-facing message.
type errorEnvelope struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// WriteJSON encodes a success payload.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// WriteError translates a domain error into the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	envelope := errorEnvelope{
		Error:   string(code),
		Message: dErrors.MessageOf(err),
		Details: dErrors.DetailsOf(err),
	}
	if code == dErrors.CodeInternal || code == "" {
		// Internal causes stay out of responses.
		envelope.Error = string(dErrors.CodeInternal)
		envelope.Message = "Une erreur interne est survenue"
		envelope.Details = nil
	}
	WriteJSON(w, StatusOf(code), envelope)
}

// StatusOf maps a domain error code to its HTTP status.
func StatusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden,
		dErrors.CodeInvalidSecurityCode,
		dErrors.CodeNotRevisionAuthor,
		dErrors.CodeCompanyClosed,
		dErrors.CodeCompanyDormant:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeRevisionNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict,
		dErrors.CodeAlreadySigned,
		dErrors.CodeNotTransitionable,
		dErrors.CodeRevisionNotPending,
		dErrors.CodeFieldLocked:
		return http.StatusConflict
	case dErrors.CodeBadRequest,
		dErrors.CodeInvalidInput,
		dErrors.CodeMissingSecurityCode,
		dErrors.CodeMissingRequiredFields,
		dErrors.CodeTooManyTransporters,
		dErrors.CodeDuplicateTransporterUsage,
		dErrors.CodeConflictingTransporterData:
		return http.StatusBadRequest
	case dErrors.CodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
