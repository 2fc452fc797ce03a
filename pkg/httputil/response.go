package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteText writes a plain text body, used for endpoints that answer with a bare id
func WriteText(w http.ResponseWriter, status int, body string) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write([]byte(body))
	return err
}

// WriteCreated writes a 201 with no body
func WriteCreated(w http.ResponseWriter) {
	w.WriteHeader(http.StatusCreated)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteAppError writes err using its apierrors kind. Internal details never
// reach the client.
func WriteAppError(w http.ResponseWriter, err error) {
	kind := apierrors.KindOf(err)
	if kind == "" {
		kind = apierrors.KindInternal
	}
	if kind == apierrors.KindRateLimited && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, kind.HTTPStatus(), ErrorResponse{
		Error:   string(kind),
		Message: apierrors.PublicMessage(err),
	})
}
