// Package httpapi is the HTTP transport (§1's "external collaborator",
// built out fully here so the server is runnable): request decoding,
// auth, and translation of engine/apperr results to the wire shapes and
// status codes named in §6.1/§6.2/§7.
//
// Grounded on the teacher's cmd/server/main.go handler style: a plain
// net/http.ServeMux, one handler function per resource, manual method
// checks and path parsing.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"tochka-exchange/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError translates err to an HTTP status per §6.2/§7. Unrecognized
// errors are logged and surfaced as a generic 500 without leaking detail.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Code.HTTPStatus(), errorBody{Code: string(appErr.Code), Message: appErr.Message})
		return
	}
	log.Error().Err(err).Msg("unhandled error")
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal server error"})
}
