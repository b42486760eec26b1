package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse is the envelope every failed request returns.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
	// Expired distinguishes "re-login" from "retry silently" on 401s.
	Expired *bool `json:"expired,omitempty"`
	// RetryAfter carries the rate-limit hint in seconds on 429s.
	RetryAfter int `json:"retry_after,omitempty"`
}

// WriteJSON writes an arbitrary payload with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Encoding errors are not recoverable at this point
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes the standard failure envelope.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Success: false, Message: message})
}

// WriteValidationError writes a 400 with field-level details.
func WriteValidationError(w http.ResponseWriter, message string, fields map[string]string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Success: false,
		Message: message,
		Errors:  fields,
	})
}

// WriteUnauthorized writes a 401 carrying the token-expiry flag.
func WriteUnauthorized(w http.ResponseWriter, message string, expired bool) {
	WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Success: false,
		Message: message,
		Expired: &expired,
	})
}

// WriteTooManyRequests writes a 429 with a retry-after hint in seconds.
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Success:    false,
		Message:    message,
		RetryAfter: retryAfterSeconds,
	})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
