package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/datasci/pkg/api"
)

// mapHTTPError converts a non-2xx backend response into an APIError.
// Rate limiting and outages stay distinguishable so the caller can decide
// whether to retry.
func mapHTTPError(resp *http.Response) *api.APIError {
	message := extractErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "model rate limit exceeded"
		}
		return api.NewTooManyRequestsError(message)

	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		if message == "" {
			message = fmt.Sprintf("model backend unavailable (HTTP %d)", resp.StatusCode)
		}
		return api.NewUnavailableError(message)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "model backend authentication failed"
		}
		return api.NewModelError(message)

	default:
		if message == "" {
			message = fmt.Sprintf("model backend error (HTTP %d)", resp.StatusCode)
		}
		return api.NewModelError(message)
	}
}

func mapNetworkError(err error) *api.APIError {
	return api.NewUnavailableError(fmt.Sprintf("model backend connection error: %s", err.Error()))
}

func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var errResp chatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return ""
}
