package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInconsistent = errors.New("inconsistent state")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrMalformedPath       = fmt.Errorf("logical path: %w", ErrInvalidInput)
	ErrInvalidPattern      = fmt.Errorf("pattern: %w", ErrInvalidInput)
	ErrUnconfiguredAccount = fmt.Errorf("storage account: %w", ErrNotFound)
	ErrSizeMismatch        = fmt.Errorf("local size differs from remote: %w", ErrInconsistent)
	ErrStorageUnavailable  = fmt.Errorf("storage: %w", ErrUnavailable)
)

// PathError represents a logical path that cannot be unpacked.
type PathError struct {
	Path   string // The offending logical path
	Reason string // Human-readable reason
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("malformed path %q: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error type.
func (e *PathError) Unwrap() error {
	return ErrMalformedPath
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (download, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// SizeMismatchError is returned when a cached download exists but its size
// does not match the remote object.
type SizeMismatchError struct {
	Ref        FileRef
	LocalPath  string
	LocalSize  int64
	RemoteSize int64
}

// Error implements the error interface.
func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("%s is %d bytes but %s is %d bytes remotely",
		e.LocalPath, e.LocalSize, e.Ref, e.RemoteSize)
}

// Unwrap returns the underlying error type.
func (e *SizeMismatchError) Unwrap() error {
	return ErrSizeMismatch
}

// LoadError represents a failure while loading one file into the sink.
type LoadError struct {
	Path string // Local file being loaded
	Row  int    // 1-based data row, 0 when the file itself failed
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("loading %s, row %d: %v", e.Path, e.Row, e.Err)
	}
	return fmt.Sprintf("loading %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
	Err     error  // Sentinel, defaults to ErrInvalidInput
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnconfiguredAccountError builds the configuration error raised when the
// vault holds no key for a storage account.
func UnconfiguredAccountError(account, vault string) *ConfigError {
	return &ConfigError{
		Field: "storage account " + account,
		Message: fmt.Sprintf("the pipeline is not set up to use the %s account; "+
			"add the storage key for the account to %s as a secret named %q. "+
			"All input/output paths should start with the account name",
			account, vault, account),
		Err: ErrUnconfiguredAccount,
	}
}
