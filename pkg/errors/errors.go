// Package errors defines custom error types for svnsync
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ConfigError indicates a missing or malformed setting
	ConfigError ErrorType = "config"
	// ConnectionError indicates the VCS session could not be initialized
	ConnectionError ErrorType = "connection"
	// SyncError indicates a failed adapter call during a sync operation
	SyncError ErrorType = "sync"
	// ValidationError indicates input validation issues
	ValidationError ErrorType = "validation"
	// FileSystemError indicates file system related issues
	FileSystemError ErrorType = "filesystem"
	// DatabaseError indicates history store issues
	DatabaseError ErrorType = "database"
)

// Error is the base error type for all svnsync errors
type Error struct {
	Type      ErrorType
	Message   string
	Op        string
	Path      string
	Err       error
	Retryable bool
	Context   map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path %s)", msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether the error is retryable
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithPath sets the path the error refers to
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// New creates a new Error
func New(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// NewRetryable creates a new retryable Error
func NewRetryable(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// TypeOf returns the type of the first *Error in err's chain, or "" if there is none
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}

func isType(err error, t ErrorType) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Err
	}
	return false
}

// IsConfigError checks if the error is a configuration error
func IsConfigError(err error) bool {
	return isType(err, ConfigError)
}

// IsConnectionError checks if the error is a connection error
func IsConnectionError(err error) bool {
	return isType(err, ConnectionError)
}

// IsSyncError checks if the error is a sync error
func IsSyncError(err error) bool {
	return isType(err, SyncError)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ValidationError)
}

// IsFileSystemError checks if the error is a file system error
func IsFileSystemError(err error) bool {
	return isType(err, FileSystemError)
}

// IsDatabaseError checks if the error is a database error
func IsDatabaseError(err error) bool {
	return isType(err, DatabaseError)
}

// NewConfigError creates a new configuration error
func NewConfigError(message string, err error) *Error {
	return New(ConfigError, message, err)
}

// NewConnectionError creates a new connection error
func NewConnectionError(message string, err error) *Error {
	return NewRetryable(ConnectionError, message, err)
}

// NewSyncError wraps an adapter failure with the operation and path it happened in
func NewSyncError(op, path string, err error) *Error {
	return &Error{
		Type:    SyncError,
		Message: "synchronization failed",
		Op:      op,
		Path:    path,
		Err:     err,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *Error {
	return New(ValidationError, message, err)
}

// NewFileSystemError creates a new file system error
func NewFileSystemError(message string, err error) *Error {
	return New(FileSystemError, message, err)
}

// NewDatabaseError creates a new database error
func NewDatabaseError(message string, err error) *Error {
	return New(DatabaseError, message, err)
}
