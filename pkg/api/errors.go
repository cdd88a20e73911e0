package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/rs/zerolog/log"
)

// Error is the body of every failed request.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeUnsupported = "unsupported"
	ErrCodeInternal    = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Debug().Err(err).Msg("Error writing response.")
		}
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeErr maps the core sentinel errors to a status code.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownEntry),
		errors.Is(err, core.ErrUnknownFlow),
		errors.Is(err, core.ErrUnknownDomain):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, core.ErrUnsupported):
		writeError(w, http.StatusBadRequest, ErrCodeUnsupported, err.Error())
	default:
		log.Error().Err(err).Msg("Error handling API request.")
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
