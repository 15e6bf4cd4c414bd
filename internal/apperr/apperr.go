// Package apperr provides standardized error handling for the control
// plane's HTTP surface.
//
// Every error kind from the error-handling design (invalid request,
// unauthorized, forbidden, not found, database error, LDAP error, internal
// error) maps to exactly one HTTP status code. Handlers return an *AppError
// (or a plain error, treated as InternalError) and let the error middleware
// turn it into the JSON envelope.
package apperr

import (
	"fmt"
	"net/http"
)

// Code is a machine-readable error identifier.
type Code string

const (
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeDatabaseError  Code = "DATABASE_ERROR"
	CodeLdapError      Code = "LDAP_ERROR"
	CodeInternalError  Code = "INTERNAL_ERROR"
)

// AppError is a standardized application error with HTTP context.
type AppError struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the JSON error envelope sent to clients.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// ToResponse converts the AppError to its wire representation.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   string(e.Code),
		Message: e.Message,
		Code:    string(e.Code),
		Details: e.Details,
	}
}

func statusFor(code Code) int {
	switch code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDatabaseError, CodeLdapError, CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AppError with no details.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusFor(code)}
}

// Wrap wraps an existing error as details on a new AppError.
func Wrap(code Code, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &AppError{Code: code, Message: message, Details: details, StatusCode: statusFor(code)}
}

func InvalidRequest(message string) *AppError { return New(CodeInvalidRequest, message) }
func Unauthorized(message string) *AppError   { return New(CodeUnauthorized, message) }
func Forbidden(message string) *AppError      { return New(CodeForbidden, message) }

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func DatabaseError(err error) *AppError {
	return Wrap(CodeDatabaseError, "database operation failed", err)
}

func LdapError(err error) *AppError {
	return Wrap(CodeLdapError, "LDAP operation failed", err)
}

func InternalError(message string) *AppError { return New(CodeInternalError, message) }
