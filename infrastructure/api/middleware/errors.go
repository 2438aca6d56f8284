package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/querybuddy/querybuddy/application/service"
	"github.com/querybuddy/querybuddy/domain/query"
	"github.com/querybuddy/querybuddy/domain/search"
	"github.com/querybuddy/querybuddy/infrastructure/api/jsonapi"
	"github.com/querybuddy/querybuddy/infrastructure/generator"
)

// Sentinel errors for error classification with errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrServer         = errors.New("server error")
)

// APIError is an error with an HTTP status code attached.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates an APIError. cause may be nil.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{code: code, message: message, cause: cause}
}

// Code returns the HTTP status code.
func (e *APIError) Code() int { return e.code }

// Message returns the human-readable message.
func (e *APIError) Message() string { return e.message }

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %s", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error { return e.cause }

// AuthenticationError indicates a request failed authentication.
type AuthenticationError struct {
	message string
}

// NewAuthenticationError creates an AuthenticationError.
func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{message: message}
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.message)
}

// Is matches ErrAuthentication.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// ServerError indicates an upstream or internal server failure.
type ServerError struct {
	statusCode int
	message    string
}

// NewServerError creates a ServerError.
func NewServerError(statusCode int, message string) *ServerError {
	return &ServerError{statusCode: statusCode, message: message}
}

// StatusCode returns the HTTP status code.
func (e *ServerError) StatusCode() int { return e.statusCode }

// Message returns the human-readable message.
func (e *ServerError) Message() string { return e.message }

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.statusCode, e.message)
}

// Is matches ErrServer.
func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a pipeline error to an HTTP status and writes a
// JSON:API error document. The raw error text is returned to the caller;
// it never contains credentials.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status := statusFor(err)
	if logger != nil && status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeErrorDocument(w, status, err.Error())
}

// WriteErrorStatus writes a JSON:API error document with a fixed status.
func WriteErrorStatus(w http.ResponseWriter, status int, detail string) {
	writeErrorDocument(w, status, detail)
}

func writeErrorDocument(w http.ResponseWriter, status int, detail string) {
	doc := jsonapi.NewErrorResponse(jsonapi.Error{
		Status: strconv.Itoa(status),
		Title:  http.StatusText(status),
		Detail: detail,
	})
	WriteJSON(w, status, doc)
}

func statusFor(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code()
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, query.ErrUnsafeQuery),
		errors.Is(err, query.ErrQueryExecution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, query.ErrQueryTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, generator.ErrGeneration),
		errors.Is(err, generator.ErrMalformedResponse),
		errors.Is(err, search.ErrEmbeddingService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
