// Package httpapi provides shared HTTP plumbing for the HR and agent
// services: response helpers, bearer-token middleware, CORS, and request
// logging.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with a human-readable detail
// string, matching the {"detail": ...} shape clients expect.
func WriteError(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, map[string]string{"detail": detail})
}
