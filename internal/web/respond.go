// internal/web/respond.go
package web

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"stocktrack/internal/errs"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.WithError(err).Error("failed to encode response")
		}
	}
}

// Error writes a JSON error response, mapping the error kind to an
// HTTP status and attaching field detail for validation failures.
func Error(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("internal error")
		JSON(w, status, map[string]string{"error": "internal server error"})
		return
	}

	body := map[string]any{"error": err.Error()}
	if fields := errs.FieldsOf(err); len(fields) > 0 {
		body["fields"] = fields
	}
	JSON(w, status, body)
}

// DecodeJSON decodes a JSON request body into target.
func DecodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return errs.Validation("invalid request body: %v", err)
	}
	return nil
}
