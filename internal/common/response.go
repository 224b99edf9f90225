package common

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the uniform success envelope. Every route replies with this
// shape; Data carries the route-specific payload.
type APIResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// APIErrorResponse is the uniform failure envelope. Errors carries per-field
// validation messages and is empty for non-validation failures.
type APIErrorResponse struct {
	StatusCode int          `json:"statusCode"`
	Message    string       `json:"message"`
	Errors     []FieldError `json:"errors"`
	Success    bool         `json:"success"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondWithJSON(w http.ResponseWriter, code int, data any, message string) {
	writeJSON(w, code, APIResponse{
		StatusCode: code,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithFieldErrors(w, code, message, nil)
}

func RespondWithFieldErrors(w http.ResponseWriter, code int, message string, fieldErrors []FieldError) {
	if fieldErrors == nil {
		fieldErrors = []FieldError{}
	}
	writeJSON(w, code, APIErrorResponse{
		StatusCode: code,
		Message:    message,
		Errors:     fieldErrors,
		Success:    false,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"statusCode":500,"message":"Failed to marshal JSON response","errors":[],"success":false}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
