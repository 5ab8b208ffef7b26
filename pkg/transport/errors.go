package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/datasci/pkg/api"
)

var statusByType = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:  http.StatusBadRequest,
	api.ErrorTypeUnauthenticated: http.StatusUnauthorized,
	api.ErrorTypeNotFound:        http.StatusNotFound,
	api.ErrorTypeTooManyRequests: http.StatusTooManyRequests,
	api.ErrorTypeUnavailable:     http.StatusServiceUnavailable,
	api.ErrorTypeModelError:      http.StatusBadGateway,
}

// HTTPStatusFromError returns the status code for an error type. Unknown
// types and server errors are 500.
func HTTPStatusFromError(err *api.APIError) int {
	if status, ok := statusByType[err.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse writes apiErr as {"error": {...}} with an explicit
// status. Retryable errors carry a Retry-After hint.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	if apiErr.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes apiErr with the status of its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteError writes any error; errors without an APIError in their chain
// become server errors.
func WriteError(w http.ResponseWriter, err error) {
	WriteAPIError(w, api.AsAPIError(err))
}
