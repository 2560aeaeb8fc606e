package common

import (
	"errors"
	"net/http"
)

// Error codes returned in the "code" field of the error envelope.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeMalformedNumeric = "MALFORMED_NUMERIC"
	CodeIdempotentReplay = "IDEMPOTENT_REPLAY"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL"
)

// AppError is a transport-facing error carrying the envelope code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// WithDetails returns a copy of e carrying details in the envelope.
func (e *AppError) WithDetails(details any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// AsAppError finds the first AppError in err's chain. Missing code and status default
// to a bad request.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if !errors.As(err, &target) || target == nil {
		return nil, false
	}
	cp := *target
	if cp.HTTPStatus == 0 {
		cp.HTTPStatus = http.StatusBadRequest
	}
	if cp.Code == "" {
		cp.Code = CodeBadRequest
	}
	return &cp, true
}
