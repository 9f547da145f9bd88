package utils

import (
	"errors"
	"net/http"

	"erp-backend/internal/apperr"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// Error writes {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// WriteError translates err into its status code and public message.
// Internal errors are logged with their cause and answered generically.
func WriteError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	body := map[string]interface{}{"error": apperr.PublicMessage(err)}

	var ae *apperr.Error
	if errors.As(err, &ae) && len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	JSON(w, status, body)
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}
