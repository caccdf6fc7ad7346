package httperr

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes caps request bodies read by DecodeJSONBody.
const DefaultMaxBodyBytes = 64 << 10

type BadRequestError struct {
	msg string
	err error
}

func (e *BadRequestError) Error() string { return e.msg }

func (e *BadRequestError) Unwrap() error { return e.err }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func IsBadRequest(err error) bool {
	_, ok := errors.AsType[*BadRequestError](err)
	return ok
}

// DecodeJSONBody decodes exactly one JSON value from the request body into v.
// Oversized, malformed or trailing input yields a BadRequestError.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if _, ok := errors.AsType[*http.MaxBytesError](err); ok {
			return &BadRequestError{msg: "request body too large", err: err}
		}
		if errors.Is(err, io.EOF) {
			return &BadRequestError{msg: "request body is required", err: err}
		}
		return &BadRequestError{msg: "bad json", err: err}
	}
	if dec.More() {
		return &BadRequestError{msg: "unexpected data after json body"}
	}
	return nil
}
