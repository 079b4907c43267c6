package server

import (
	"encoding/json"
	"net/http"

	"github.com/tjfontaine/tenantgate/internal/domain"
)

// apiSuccess is the envelope for successful responses.
type apiSuccess struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data"`
	TraceID string `json:"traceId,omitempty"`
}

// apiFailure is the envelope for error responses. Internal causes never
// reach the message.
type apiFailure struct {
	OK      bool      `json:"ok"`
	Error   *apiError `json:"error"`
	TraceID string    `json:"traceId,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOK renders a success envelope.
func writeOK(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusOK, apiSuccess{
		OK:      true,
		Data:    data,
		TraceID: GetTraceID(r.Context()),
	})
}

// writeError renders the canonical error envelope, logging the internal
// cause through the request log fields.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := domain.AsAPIError(err)
	AddError(r.Context(), err)

	writeJSON(w, apiErr.HTTPStatusCode(), apiFailure{
		OK: false,
		Error: &apiError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
		TraceID: GetTraceID(r.Context()),
	})
}

// decodeJSON decodes a request body, mapping failures onto the
// invalid_json error code.
func decodeJSON(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return domain.ErrInvalidJSON().WithCause(err)
	}
	return nil
}
