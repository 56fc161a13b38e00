package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// APIError is the JSON body of every non-2xx API response.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIError{StatusCode: status, Message: msg})
}
