// Package httpx holds the JSON response helpers shared by the handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/diewo77/garage-records/internal/apperr"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Kind    apperr.Kind `json:"kind,omitempty"`
	Details any         `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			// best-effort error response; avoid writing partial JSON
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
	} else {
		body = []byte("null")
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func JSONError(w http.ResponseWriter, status int, msg string, details any) {
	JSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// Fail writes err with the status of its kind. Invalid input carries its field
// violations as details; other kinds carry the underlying cause.
func Fail(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	resp := ErrorResponse{Error: err.Error(), Kind: kind}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		resp.Error = ae.Detail
		switch {
		case len(ae.Fields) > 0:
			resp.Details = ae.Fields
		case ae.Err != nil:
			resp.Details = ae.Err.Error()
		}
	}
	JSON(w, apperr.HTTPStatus(kind), resp)
}

// ReadBody reads the request body. A body over the limit set by http.MaxBytesReader is
// answered with 413 and ok is false; so is an unreadable body, with 400.
func ReadBody(w http.ResponseWriter, r *http.Request) (body []byte, ok bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			JSONError(w, http.StatusRequestEntityTooLarge, "request body too large", map[string]int64{"limit": tooLarge.Limit})
			return nil, false
		}
		JSONError(w, http.StatusBadRequest, "could not read request body", err.Error())
		return nil, false
	}
	return body, true
}
