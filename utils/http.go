package utils

import (
	"encoding/json"
	"net/http"
)

// Client-facing error strings. Provider and database internals never reach the body.
const (
	MsgUnauthorized     = "Unauthorized"
	MsgNoOrganization   = "No organization membership"
	MsgForbidden        = "Forbidden"
	MsgBadRequest       = "Bad request"
	MsgInternalError    = "Internal server error"
	MsgMethodNotAllowed = "Method not allowed"
)

// ErrorResponse is the error envelope returned by every endpoint
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// SuccessResponse is the success envelope returned by every endpoint
type SuccessResponse struct {
	OK   bool        `json:"ok"`
	Data interface{} `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with optional data
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{OK: true, Data: data})
}

// WriteError writes {ok:false, error:message}. An empty message falls back to the status default.
func WriteError(w http.ResponseWriter, status int, message string) error {
	if message == "" {
		message = defaultMessage(status)
	}
	return WriteJSON(w, status, ErrorResponse{OK: false, Error: message})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a 403 Forbidden response
func WriteForbidden(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusForbidden, message)
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusInternalServerError, message)
}

func defaultMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return MsgBadRequest
	case http.StatusUnauthorized:
		return MsgUnauthorized
	case http.StatusForbidden:
		return MsgForbidden
	case http.StatusMethodNotAllowed:
		return MsgMethodNotAllowed
	default:
		return MsgInternalError
	}
}
