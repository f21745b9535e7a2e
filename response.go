package main

import (
	"encoding/json"
	"net/http"
)

// APIResponse centralizes header handling for JSON responses.
type APIResponse struct {
	w           http.ResponseWriter
	cacheStatus string
}

// Respond creates a response helper for a request
func Respond(w http.ResponseWriter) *APIResponse {
	return &APIResponse{w: w}
}

// SetCacheStatus sets the X-Cache-Status header value
func (a *APIResponse) SetCacheStatus(status string) *APIResponse {
	a.cacheStatus = status
	return a
}

func (a *APIResponse) writeHeaders() {
	a.w.Header().Set("Content-Type", "application/json")
	if a.cacheStatus != "" {
		a.w.Header().Set("X-Cache-Status", a.cacheStatus)
	}
}

// JSON writes headers and encodes data as JSON (200 OK)
func (a *APIResponse) JSON(data interface{}) error {
	a.writeHeaders()
	return json.NewEncoder(a.w).Encode(data)
}

// Raw writes headers and an already-encoded JSON body (200 OK)
func (a *APIResponse) Raw(body string) error {
	a.writeHeaders()
	_, err := a.w.Write([]byte(body))
	return err
}

// Error writes headers, sets the status code, and encodes the standard
// error response shape
func (a *APIResponse) Error(statusCode int, message string) error {
	a.writeHeaders()
	a.w.WriteHeader(statusCode)
	return json.NewEncoder(a.w).Encode(ErrorResponse{Error: true, Message: message})
}
