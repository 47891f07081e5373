package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/raido/internal/apperr"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

type errResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusOf maps an error kind to an HTTP status. Errors that carry no kind
// are internal.
func statusOf(err error) int {
	kind := apperr.KindOf(err)
	if kind == apperr.ErrContract && !errors.Is(err, apperr.ErrContract) {
		return http.StatusInternalServerError
	}
	switch kind {
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrAlreadyExists:
		return http.StatusConflict
	case apperr.ErrDeserialization:
		return http.StatusUnprocessableEntity
	case apperr.ErrContract, apperr.ErrInvalidPath:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and writes the mapped status. Internal
// error details are not exposed.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Kind: apperr.KindOf(err).Error()})
}
