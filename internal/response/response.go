package response

import (
	"encoding/json"
	"net/http"
	"time"

	"modrota/internal/contextutils"
	"modrota/internal/services"
)

// ===============================
// RESPONSE ENVELOPE
// ===============================

// Envelope is the standard API response wrapper.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError is the client-facing error body.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WriteJSON writes a success envelope.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, status, &Envelope{
		Success:   true,
		Data:      data,
		RequestID: contextutils.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// WriteError writes a plain error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	write(w, status, &Envelope{
		Success:   false,
		Error:     &APIError{Type: http.StatusText(status), Message: message},
		RequestID: contextutils.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// WriteServiceError maps a service-layer error onto the envelope, carrying
// its HTTP status and machine-readable code through.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := services.GetServiceError(err)
	write(w, svcErr.GetStatusCode(), &Envelope{
		Success: false,
		Error: &APIError{
			Type:    svcErr.Type,
			Message: svcErr.Message,
			Code:    svcErr.Code,
		},
		RequestID: contextutils.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func write(w http.ResponseWriter, status int, env *Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}
