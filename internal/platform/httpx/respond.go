// Package httpx carries the response conventions of the Trailview API:
// plain JSON payloads on success, RFC7807 problem details on failure.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
)

// Request bodies larger than this are rejected during decoding. Audit
// records with before/after snapshots stay well under it.
const maxBodyBytes = 1 << 20

// ProblemDetail is the RFC7807 problem-details payload.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem-details response under its registered
// media type.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes a size-bounded JSON request body into target.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(target)
}
