package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/lmercier/libris/internal/liberr"
)

// validate checks incoming request DTOs via struct tags.
var validate = validator.New(validator.WithRequiredStructEnabled())

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a plain JSON error response with an explicit status.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps a domain error to its HTTP status and a {code, error, id}
// body. Errors outside the taxonomy become opaque 500s; their cause is
// logged, never leaked.
func writeError(w http.ResponseWriter, err error) {
	var domain *liberr.Error
	if errors.As(err, &domain) {
		if domain.Code == liberr.CodeStorageUnavailable {
			slog.Error("storage failure", "op", domain.Message, "error", err)
		}
		jsonResponse(w, domain.HTTPStatus(), domain)
		return
	}
	slog.Error("unhandled error", "error", err)
	jsonError(w, http.StatusInternalServerError, "internal error")
}

// decodeJSON decodes and validates a JSON request body.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return liberr.Validation("invalid request body")
	}
	if err := validate.Struct(target); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return err
		}
		return liberr.Validation("invalid request: %v", err)
	}
	return nil
}
