package utils

import (
	"encoding/json"
	"net/http"
	"time"
)

// APIResponse is the envelope returned by every JSON endpoint.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func ErrorResponse(message, reason string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     reason,
		Timestamp: time.Now().UTC(),
	}
}

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError is shorthand for WriteJSON with an ErrorResponse body.
func WriteError(w http.ResponseWriter, status int, message, reason string) {
	WriteJSON(w, status, ErrorResponse(message, reason))
}
