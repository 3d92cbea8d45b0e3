package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cadence/internal/apperr"
)

const maxJSONBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusOf maps an error kind onto an HTTP status.
func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ErrInvalidArgument, apperr.ErrMalformedInput:
		return http.StatusBadRequest
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrConflict, apperr.ErrAlreadyExists:
		return http.StatusConflict
	case apperr.ErrInsufficientData:
		return http.StatusUnprocessableEntity
	case apperr.ErrDependencyUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError writes err with the status of its kind. Errors without a known
// kind are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, op string, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: verrs.Error(), Kind: "invalid_argument"})
		return
	}
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Kind: "internal"})
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Kind: apperr.KindName(err)})
}

// decodeJSON reads a bounded JSON body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return validate(w, v)
}

func decodeBytes(w http.ResponseWriter, buf []byte, v validation.Validatable) bool {
	if err := json.Unmarshal(buf, v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return validate(w, v)
}

func validate(w http.ResponseWriter, v validation.Validatable) bool {
	if err := v.Validate(); err != nil {
		writeError(w, "validate", err)
		return false
	}
	return true
}
