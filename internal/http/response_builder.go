// Package http exposes the ledger as a JSON API.
//
// This file implements the builder used by every handler to write JSON
// bodies and the mapping from domain errors to status codes.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"famfunds/internal/core"
)

// Error codes carried in error bodies.
const (
	CodeNotFound         = "not_found"
	CodeAlreadyExists    = "already_exists"
	CodeAccountInactive  = "account_inactive"
	CodeInvalidState     = "invalid_state"
	CodeInvalidArgument  = "invalid_argument"
	CodeBadRequest       = "bad_request"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeRateLimited      = "rate_limited"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	return b
}

// render encodes the payload. An encoding failure becomes a 500.
func (b *ResponseBuilder) render() (int, []byte) {
	if b.payload == nil {
		return b.statusCode, nil
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(b.payload); err != nil {
		return http.StatusInternalServerError, []byte(`{"error":{"code":"internal","message":"encoding failed"}}` + "\n")
	}
	return b.statusCode, buf.Bytes()
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	status, body := b.render()
	writeRaw(w, b.headers, status, body)
}

func writeRaw(w http.ResponseWriter, headers map[string]string, status int, body []byte) {
	for name, value := range headers {
		w.Header().Set(name, value)
	}
	if body != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(errorBody{Error: apiError{Code: code, Message: message}})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, CodeInvalidArgument, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError() *ResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}

// TooManyRequestsError creates a 429 Too Many Requests error response.
func TooManyRequestsError() *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later")
}

// DomainError maps a ledger error to its response. Unknown errors are
// reported as 500 without their text.
func DomainError(err error) *ResponseBuilder {
	var malformed *malformedError
	switch {
	case errors.As(err, &malformed):
		return BadRequestError(malformed.Error())
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, core.ErrAlreadyExists):
		return ErrorResponse(http.StatusConflict, CodeAlreadyExists, err.Error())
	case errors.Is(err, core.ErrAccountInactive):
		return ErrorResponse(http.StatusConflict, CodeAccountInactive, err.Error())
	case errors.Is(err, core.ErrInvalidState):
		return ErrorResponse(http.StatusConflict, CodeInvalidState, err.Error())
	case errors.Is(err, core.ErrInvalidArgument):
		return UnprocessableEntityError(err.Error())
	default:
		return InternalServerError("internal error")
	}
}
