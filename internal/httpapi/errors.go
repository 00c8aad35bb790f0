package httpapi

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"llmgate/internal/gate"
	"llmgate/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps a service error to a status code, counting admission
// rejections as backpressure.
func statusFor(err error) int {
	switch {
	case gate.IsBusy(err):
		IncrementBackpressure("busy")
	case gate.IsLoading(err), gate.IsFailed(err):
		IncrementBackpressure("loading")
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}
