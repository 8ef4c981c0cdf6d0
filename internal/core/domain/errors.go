package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransactionNotFound is returned when an operation names an unknown transaction.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrFileNotFound is returned when a transaction has no file with the given path.
	ErrFileNotFound = errors.New("file not found")

	// ErrSimulationActive is returned when a simulation is already running for a transaction.
	ErrSimulationActive = errors.New("simulation already active")

	// ErrTransactionNotPending is returned when a simulation is requested for a transaction that is not PENDING.
	ErrTransactionNotPending = errors.New("transaction not pending")
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeConflict indicates the resource is not in a state that allows the request.
	ErrorTypeConflict ErrorType = "conflict"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeTransactionNotFound     ErrorCode = "transaction_not_found"
	ErrorCodeFileNotFound            ErrorCode = "file_not_found"
	ErrorCodeSimulationAlreadyActive ErrorCode = "simulation_already_active"
	ErrorCodeTransactionNotPending   ErrorCode = "transaction_not_pending"
	ErrorCodeInvalidStatus           ErrorCode = "invalid_status"
	ErrorCodeInvalidScenario         ErrorCode = "invalid_scenario"
	ErrorCodeJournalDisabled         ErrorCode = "journal_disabled"
)

// APIError is the canonical error returned to HTTP clients.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Param is the parameter that caused the error (if applicable)
	Param string `json:"param,omitempty"`

	// StatusCode is the suggested HTTP status code
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeNotFound, message)
}

// ErrConflict creates a conflict error.
func ErrConflict(message string) *APIError {
	return NewAPIError(ErrorTypeConflict, message)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}

// ToAPIError converts any error into an APIError. Known sentinel errors map to
// not_found or conflict; everything else is a server error.
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, ErrTransactionNotFound):
		return ErrNotFound(err.Error()).WithCode(ErrorCodeTransactionNotFound)
	case errors.Is(err, ErrFileNotFound):
		return ErrNotFound(err.Error()).WithCode(ErrorCodeFileNotFound)
	case errors.Is(err, ErrSimulationActive):
		return ErrConflict(err.Error()).WithCode(ErrorCodeSimulationAlreadyActive)
	case errors.Is(err, ErrTransactionNotPending):
		return ErrConflict(err.Error()).WithCode(ErrorCodeTransactionNotPending)
	}

	return ErrServer(err.Error())
}
