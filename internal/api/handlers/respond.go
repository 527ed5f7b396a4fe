package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hugh/crewbase/internal/api/dto"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

// decodeJSON reads the request body into v. With allowEmpty an absent body
// leaves v at its zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody
	}
	return nil
}
