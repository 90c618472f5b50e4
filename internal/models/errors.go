package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrMalformedPackage ErrorType = iota
	ErrMissingFile
	ErrCacheCorrupt
	ErrSourceUnavailable
	ErrInvalidConfig
	ErrSigning
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrMalformedPackage:
		return "MalformedPackage"
	case ErrMissingFile:
		return "MissingFile"
	case ErrCacheCorrupt:
		return "CacheCorrupt"
	case ErrSourceUnavailable:
		return "SourceUnavailable"
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrSigning:
		return "Signing"
	default:
		return "Unknown"
	}
}

// RepoError represents an error raised while building or publishing the repository
type RepoError struct {
	Type    ErrorType
	Package string
	Err     error
}

// Error implements the error interface
func (e *RepoError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Package, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *RepoError) Unwrap() error {
	return e.Err
}

// NewError wraps err with a type and an optional package path
func NewError(t ErrorType, pkg string, err error) *RepoError {
	return &RepoError{Type: t, Package: pkg, Err: err}
}

// IsErrorType reports whether any RepoError in err's chain has type t
func IsErrorType(err error, t ErrorType) bool {
	var re *RepoError
	for err != nil {
		if !errors.As(err, &re) {
			return false
		}
		if re.Type == t {
			return true
		}
		err = re.Err
	}
	return false
}
