// internal/controller/response.go
package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// WriteError maps application errors to status codes and renders them as
// {"error":{"message","status","details"}}.
func WriteError(w http.ResponseWriter, err error) {
	body := errorBody{Message: err.Error(), Status: http.StatusInternalServerError}

	var ve *appErrors.ValidationError
	switch {
	case errors.As(err, &ve):
		body.Status = http.StatusBadRequest
		body.Details = ve.Fields
	case appErrors.IsNotFound(err), errors.Is(err, appErrors.ErrContactNotFound):
		body.Status = http.StatusNotFound
	case errors.Is(err, appErrors.ErrNotCancellable):
		body.Status = http.StatusConflict
	default:
		log.Error().Err(err).Msg("request failed")
		body.Message = "Unexpected server error"
	}
	WriteJSON(w, body.Status, map[string]errorBody{"error": body})
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return appErrors.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
